// Package observability owns the process-wide loggers.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles.
const (
	ProfileConsole    = "CONSOLE"
	ProfileStructured = "STRUCTURED"
)

// CLILogger is the shared logger for commands. It is a no-op until
// InitCLILogger runs.
var CLILogger = zap.NewNop()

var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// InitCLILogger installs a human-readable stderr logger named name.
func InitCLILogger(name string, verbose bool) {
	if verbose {
		level.SetLevel(zap.DebugLevel)
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	enc.CallerKey = ""
	enc.NameKey = ""
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !isTerminal(os.Stderr) {
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	CLILogger = zap.New(core).Named(name)
}

// InitStructuredLogger installs a JSON stderr logger for long-running
// processes.
func InitStructuredLogger(name string) {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(os.Stderr), level)
	CLILogger = zap.New(core, zap.AddCaller()).Named(name)
}

// Configure applies a logging profile and level from configuration.
// verbose forces debug regardless of levelName.
func Configure(name, profile, levelName string, verbose bool) error {
	if !verbose {
		if err := SetLevel(levelName); err != nil {
			return err
		}
	}
	switch strings.ToUpper(strings.TrimSpace(profile)) {
	case "", ProfileConsole:
		InitCLILogger(name, verbose)
	case ProfileStructured:
		if verbose {
			level.SetLevel(zap.DebugLevel)
		}
		InitStructuredLogger(name)
	default:
		return fmt.Errorf("unknown logging profile %q", profile)
	}
	return nil
}

// SetLevel changes the level of every logger created here.
func SetLevel(name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.SetLevel(l)
	return nil
}

// Level returns the current level.
func Level() zapcore.Level {
	return level.Level()
}

func isTerminal(f *os.File) bool {
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}
