package records

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config selects where records persist.
type Config struct {
	// Backend is file, sqlite or memory.
	Backend string `mapstructure:"backend"`

	// Dir is the directory for file slots and the default sqlite path.
	Dir string `mapstructure:"dir"`

	// SQLite locates the database for the sqlite backend. When empty,
	// <Dir>/records.db is used.
	SQLite SQLiteConfig `mapstructure:"sqlite"`

	// SlotName overrides DefaultSlotName.
	SlotName string `mapstructure:"slot_name"`
}

// OpenSlot opens the slot backend named by cfg.
func OpenSlot(ctx context.Context, cfg Config) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFile:
		if strings.TrimSpace(cfg.Dir) == "" {
			return nil, fmt.Errorf("records dir is required for the file backend")
		}
		return NewFileSlot(cfg.Dir), nil
	case BackendSQLite:
		sc := cfg.SQLite
		if strings.TrimSpace(sc.Path) == "" && strings.TrimSpace(sc.URL) == "" {
			if strings.TrimSpace(cfg.Dir) == "" {
				return nil, fmt.Errorf("records dir or sqlite path is required for the sqlite backend")
			}
			sc.Path = filepath.Join(cfg.Dir, "records.db")
		}
		return OpenSQLiteSlot(ctx, sc)
	case BackendMemory:
		return NewMemorySlot(), nil
	default:
		return nil, fmt.Errorf("records backend %q is not supported", cfg.Backend)
	}
}
