package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	chroniclecmd "github.com/louisbranch/chronicle/internal/cmd/chronicle"
	"github.com/louisbranch/chronicle/internal/platform/config"
)

func main() {
	cfg, args, err := chroniclecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := chroniclecmd.Run(ctx, cfg, args, os.Stdin, os.Stdout, os.Stderr); err != nil {
		config.Exitf("chronicle: %v", err)
	}
}
