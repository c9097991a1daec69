package logutil

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Configure installs the process-wide slog logger at the requested level.
func Configure(levelRaw string) error {
	level, err := ParseLevel(levelRaw)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func ParseLevel(levelRaw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelRaw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid loglevel %q", levelRaw)
	}
}
