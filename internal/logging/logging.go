package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps the LOG_LEVEL vocabulary to a zerolog level. Unknown
// values fall back to def.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "production", "prod":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	}
	return def
}

// Init configures the global zerolog logger and returns it. LOG_LEVEL in
// the environment wins over level.
func Init(level string, def zerolog.Level) zerolog.Logger {
	_, noColor := os.LookupEnv("NO_COLOR")
	return initTo(os.Stderr, noColor, level, def)
}

func initTo(w io.Writer, noColor bool, level string, def zerolog.Level) zerolog.Logger {
	l := ParseLevel(level, def)
	if env, ok := os.LookupEnv("LOG_LEVEL"); ok {
		l = ParseLevel(env, l)
	}
	zerolog.SetGlobalLevel(l)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: "15:04:05.000"}
	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
