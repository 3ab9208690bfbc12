package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger to write human-readable lines to w
// (stderr when nil). Colour is only used on stderr. An unknown level falls
// back to info.
func Init(level string, w io.Writer) zerolog.Level {
	if w == nil {
		w = os.Stderr
	}

	levelStr := strings.ToLower(strings.TrimSpace(level))
	lvl, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		lvl = zerolog.InfoLevel
		if levelStr != "" {
			fmt.Fprintf(w, "unknown log level %q, defaulting to info\n", levelStr)
		}
	}

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    w != os.Stderr,
		TimeFormat: "2006-01-02 15:04:05",
	}).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	return lvl
}

// WithComponent returns a child of the global logger tagged with a component name.
func WithComponent(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
