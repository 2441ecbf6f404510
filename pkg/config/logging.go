package config

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/contiamo/schema-migrator/pkg/tracing"
)

// Log configures the global logger
type Log struct {
	// Level is one of the logrus levels, e.g. debug, info, warn
	Level string `json:"level" env:"LEVEL" envDefault:"info"`
	// Format is either text or json
	Format string `json:"format" env:"FORMAT" envDefault:"text"`
}

// Logging configures the log level and formatter of the global logger and
// forwards log entries to the span of their context
func Logging(cfg Log) error {
	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("can not parse log-level: %w", err)
	}

	var formatter logrus.Formatter
	switch cfg.Format {
	case "", "text":
		formatter = &logrus.TextFormatter{
			FullTimestamp:          true,
			DisableLevelTruncation: true,
			PadLevelText:           true,
		}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	logrus.SetLevel(lvl)
	logrus.SetFormatter(formatter)
	logrus.AddHook(&tracing.SpanHook{})

	return nil
}
