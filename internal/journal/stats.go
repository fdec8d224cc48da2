package journal

// Stats summarizes the journal for observability.
type Stats struct {
	TotalEvents           int
	GivenEvents           int
	MeantEvents           int
	Tombstones            int
	Superseded            int
	ActiveInterpretations int
	LogicalClock          uint64
	Heads                 int
	Pending               int
}

// Stats counts the journal's contents.
func (j *Journal) Stats() Stats {
	stats := Stats{
		TotalEvents:  len(j.events),
		Superseded:   len(j.supersededBy),
		LogicalClock: j.clock,
		Heads:        len(j.heads),
		Pending:      len(j.pending),
	}
	for _, evt := range j.events {
		switch evt.Kind {
		case KindGiven:
			stats.GivenEvents++
		case KindMeant:
			stats.MeantEvents++
			if _, superseded := j.supersededBy[evt.ID]; !superseded {
				stats.ActiveInterpretations++
			}
		}
		if evt.Payload.Action == ActionTombstone {
			stats.Tombstones++
		}
	}
	return stats
}
