// Package corelog wraps zerolog into per-component child loggers, replacing
// the teacher's package-level bleater singleton with explicit construction.
package corelog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options controls the root logger's level and rendering.
type Options struct {
	Level  string // debug|info|warn|error
	Format string // json|text
	Output io.Writer
}

// New builds the root logger from which every component's child logger is
// derived via With().
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	if opts.Format == "text" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}

	root := zerolog.New(out).With().Timestamp().Logger()

	switch opts.Level {
	case "debug":
		root = root.Level(zerolog.DebugLevel)
	case "warn":
		root = root.Level(zerolog.WarnLevel)
	case "error":
		root = root.Level(zerolog.ErrorLevel)
	default:
		root = root.Level(zerolog.InfoLevel)
	}

	return root
}

// Component returns a child logger tagged with the given component name, the
// value every subsystem constructor takes instead of reaching for a global.
func Component(root zerolog.Logger, name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}
