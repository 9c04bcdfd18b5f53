// internal/logging/logging.go
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	cfg "github.com/rx178nwj/plant-dashboard/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05"

// New builds the process logger. The returned closer releases a log file, if any.
func New(c cfg.LogConfig) (*logrus.Logger, func() error, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(orDefault(c.Level, "info"))
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	log.SetLevel(level)

	switch strings.ToLower(orDefault(c.Format, "text")) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat})
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", c.Format)
	}

	out, closer, err := openOutput(orDefault(c.Output, "stderr"))
	if err != nil {
		return nil, nil, err
	}
	log.SetOutput(out)
	return log, closer, nil
}

func openOutput(o string) (io.Writer, func() error, error) {
	noop := func() error { return nil }
	switch o {
	case "stderr":
		return os.Stderr, noop, nil
	case "stdout":
		return os.Stdout, noop, nil
	}
	f, err := os.OpenFile(o, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %s: %w", o, err)
	}
	return f, f.Close, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
