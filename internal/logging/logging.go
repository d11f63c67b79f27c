// Package logging builds the root logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to w at level, formatted as "text" or "json".
// A nil writer defaults to stderr.
func New(level logrus.Level, format string, w io.Writer) (*logrus.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(level)
	switch format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return log, nil
}

// Component scopes log to a named component. A nil logger falls back to the
// standard logger.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return log.WithField("component", name)
}
