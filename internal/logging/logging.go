package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the service logger and installs it as the global zerolog logger.
// format is "json" or "console"; unknown levels fall back to info.
func New(level, format string, service string) zerolog.Logger {
	return newLogger(os.Stdout, level, format, service)
}

func newLogger(out io.Writer, level, format, service string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Str("service", service).Logger()
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger
}
