package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Setup installs the process-wide slog default. level accepts the usual
// names (debug, info, warn, error; case-insensitive), format is "json" for
// aggregation or "text" for local reading. Records are tagged with the
// binary name so api, worker, and ingestor lines stay apart in a merged
// stream, and debug level adds source locations.
func Setup(level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h).With("service", filepath.Base(os.Args[0])))
}
