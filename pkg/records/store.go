package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultSlotName is the slot holding the record list.
const DefaultSlotName = "converted-records"

const envelopeVersion = 1

type envelope struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// Store loads and saves the ordered record list in one slot.
//
// Store is not safe for concurrent mutation; the client facade serializes
// access.
type Store struct {
	slot   Slot
	name   string
	logger *zap.Logger
}

func NewStore(slot Slot, name string, logger *zap.Logger) *Store {
	if strings.TrimSpace(name) == "" {
		name = DefaultSlotName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{slot: slot, name: name, logger: logger}
}

// Load returns the persisted records, oldest first.
//
// Malformed persisted data is discarded: Load logs a warning and returns an
// empty list with a nil error. Only slot I/O failures are returned.
func (s *Store) Load(ctx context.Context) ([]Record, error) {
	raw, err := s.slot.Read(ctx, s.name)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []Record{}, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("discarding malformed records", zap.String("slot", s.name), zap.Error(err))
		return []Record{}, nil
	}
	if env.Version != envelopeVersion {
		s.logger.Warn("discarding records with unsupported version",
			zap.String("slot", s.name), zap.Int("version", env.Version))
		return []Record{}, nil
	}

	out := make([]Record, 0, len(env.Records))
	seen := make(map[string]struct{}, len(env.Records))
	for _, r := range env.Records {
		if strings.TrimSpace(r.ID) == "" {
			s.logger.Warn("discarding record without id", zap.String("original_name", r.OriginalName))
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// Save persists the full record sequence, replacing what was stored.
func (s *Store) Save(ctx context.Context, list []Record) error {
	if list == nil {
		list = []Record{}
	}
	b, err := json.MarshalIndent(envelope{Version: envelopeVersion, Records: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	b = append(b, '\n')
	return s.slot.Write(ctx, s.name, b)
}

// Clear empties persisted state.
func (s *Store) Clear(ctx context.Context) error {
	return s.slot.Remove(ctx, s.name)
}

func (s *Store) Close() error {
	return s.slot.Close()
}
