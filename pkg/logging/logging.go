// Package logging builds the process-wide logger sink that the CLI
// front-end initializes once and every core component receives through
// its constructor. Grounded on the teacher's pkg/log/log.go: a
// development logger that writes JSON lines to a file when debugging is
// requested, a production logger that writes info level and above to
// stderr, and a quiet logger that writes warning level and above.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Options controls how the logger is constructed.
type Options struct {
	Debug     bool
	Quiet     bool
	ConfigDir string
	Version   string
	Commit    string
	BuildDate string
}

// NewLogger returns a logger entry carrying static build fields, matching
// the teacher's log.NewLogger fields (debug/version/commit/buildDate).
func NewLogger(opts Options) (*logrus.Entry, error) {
	var log *logrus.Logger
	var err error
	switch {
	case opts.Debug:
		log, err = newDevelopmentLogger(opts.ConfigDir)
		if err != nil {
			return nil, err
		}
	case opts.Quiet:
		log = newQuietLogger()
	default:
		log = newProductionLogger()
	}

	log.Formatter = &logrus.JSONFormatter{}

	return log.WithFields(logrus.Fields{
		"debug":     opts.Debug,
		"version":   opts.Version,
		"commit":    opts.Commit,
		"buildDate": opts.BuildDate,
	}), nil
}

func newDevelopmentLogger(configDir string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	if configDir == "" {
		configDir = "."
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", configDir, err)
	}
	file, err := os.OpenFile(filepath.Join(configDir, "cedarbackup.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(file)
	return log, nil
}

// newQuietLogger still logs to stderr at warning level and above, used
// when --quiet suppresses informational action narration but real
// problems must still surface.
func newQuietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.SetLevel(logrus.WarnLevel)
	return log
}

func newProductionLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.SetLevel(logrus.InfoLevel)
	return log
}

// Discard returns a logger that drops everything, for tests that don't
// care about log output.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.Out = io.Discard
	return logrus.NewEntry(log)
}
