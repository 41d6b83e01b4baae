package records

import "time"

// Policy bounds the record history. Zero values disable a limit.
type Policy struct {
	// MaxRecords keeps at most this many records.
	MaxRecords int `mapstructure:"max_records"`

	// MaxAge drops records older than this.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// Apply splits an oldest-first list into records to keep and records to
// evict. Expired records go first, then the oldest until MaxRecords fits.
func (p Policy) Apply(list []Record, now time.Time) (kept, evicted []Record) {
	kept = make([]Record, 0, len(list))
	for _, r := range list {
		if p.MaxAge > 0 && now.Sub(r.Timestamp) > p.MaxAge {
			evicted = append(evicted, r)
			continue
		}
		kept = append(kept, r)
	}

	if p.MaxRecords > 0 && len(kept) > p.MaxRecords {
		over := len(kept) - p.MaxRecords
		evicted = append(evicted, kept[:over]...)
		kept = append([]Record(nil), kept[over:]...)
	}
	return kept, evicted
}
