package records

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ids(list []Record) []string {
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.ID)
	}
	return out
}

func TestPolicy_Apply(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	list := []Record{
		{ID: "old", Timestamp: now.Add(-48 * time.Hour)},
		{ID: "a", Timestamp: now.Add(-3 * time.Hour)},
		{ID: "b", Timestamp: now.Add(-2 * time.Hour)},
		{ID: "c", Timestamp: now.Add(-1 * time.Hour)},
	}

	tests := []struct {
		name        string
		policy      Policy
		wantKept    []string
		wantEvicted []string
	}{
		{"no limits", Policy{}, []string{"old", "a", "b", "c"}, []string{}},
		{"max records", Policy{MaxRecords: 2}, []string{"b", "c"}, []string{"old", "a"}},
		{"max age", Policy{MaxAge: 24 * time.Hour}, []string{"a", "b", "c"}, []string{"old"}},
		{"both", Policy{MaxRecords: 1, MaxAge: 24 * time.Hour}, []string{"c"}, []string{"old", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, evicted := tt.policy.Apply(list, now)
			assert.Equal(t, tt.wantKept, ids(kept))
			assert.Equal(t, tt.wantEvicted, ids(evicted))
		})
	}
}
