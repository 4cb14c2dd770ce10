package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const logServiceName = "eventos"

// NewLogger builds the process logger from cfg and installs it as the
// zerolog global. An empty or unknown level falls back to info.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	logger := buildLogger(cfg, os.Stdout)
	log.Logger = logger
	return logger
}

func buildLogger(cfg LoggingConfig, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level := zerolog.InfoLevel
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	fields := zerolog.New(out).Level(level).With().Timestamp().Str("service", logServiceName)
	if level <= zerolog.DebugLevel {
		fields = fields.Caller()
	}
	return fields.Logger()
}
