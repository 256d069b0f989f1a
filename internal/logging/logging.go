// Package logging builds the zap loggers used by every command.
//
// The chat TUI owns the terminal, so logs go to a file under the XDG state
// directory unless the caller asks for stderr with "-".
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Stderr selects standard error as the log destination.
const Stderr = "-"

// New returns a JSON logger at level writing to path.
func New(level, path string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	out := "stderr"
	if path != Stderr {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		out = path
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{out}
	cfg.ErrorOutputPaths = []string{out}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil
	return cfg.Build()
}

// DefaultPath returns $XDG_STATE_HOME/tutor/tutor.log or
// ~/.local/state/tutor/tutor.log.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "tutor", "tutor.log"), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
