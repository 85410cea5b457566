package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds logging configuration
type Config struct {
	Level  string
	Pretty bool
}

// SetupLogger configures the global zerolog logger. Pretty output is for
// terminals; otherwise one JSON object per line is written to stdout.
func SetupLogger(cfg Config) {
	SetupLoggerTo(os.Stdout, cfg)
}

// SetupLoggerTo configures the global logger to write to out
func SetupLoggerTo(out io.Writer, cfg Config) {
	var output io.Writer = out
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// GormLogLevel maps the service log level onto gorm's SQL logger
func GormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "trace":
		return gormlogger.Info
	case "debug", "info", "warn":
		return gormlogger.Warn
	case "disabled":
		return gormlogger.Silent
	default:
		return gormlogger.Error
	}
}
