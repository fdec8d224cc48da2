// Package chronicle parses CLI flags and runs journal commands.
package chronicle

import (
	"flag"
	"time"

	"github.com/louisbranch/chronicle/internal/platform/config"
)

// Config holds chronicle command configuration.
type Config struct {
	DBPath        string        `env:"CHRONICLE_DB_PATH"`
	Actor         string        `env:"CHRONICLE_ACTOR"`
	Workspace     string        `env:"CHRONICLE_WORKSPACE" envDefault:"default"`
	Device        string        `env:"CHRONICLE_DEVICE"`
	MaxPendingAge time.Duration `env:"CHRONICLE_MAX_PENDING_AGE" envDefault:"60s"`
}

// ParseConfig parses environment and flags into a Config. Flags override
// environment values.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, []string, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, nil, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the journal database (in-memory when empty)")
	fs.StringVar(&cfg.Actor, "actor", cfg.Actor, "Actor id recorded on appended events")
	fs.StringVar(&cfg.Workspace, "workspace", cfg.Workspace, "Workspace recorded on appended events")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "Device id (generated and stored when empty)")
	fs.DurationVar(&cfg.MaxPendingAge, "max-pending-age", cfg.MaxPendingAge, "How long events may wait for missing parents")
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}
	return cfg, fs.Args(), nil
}
