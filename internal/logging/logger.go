package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Interface describes the minimal logging interface used across moxie.
type Interface interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

var (
	globalLogger *zerologAdapter
	once         sync.Once
)

// Logger returns a lazily initialized zerolog-backed logger implementing Interface.
func Logger() Interface {
	return adapter()
}

func adapter() *zerologAdapter {
	once.Do(func() {
		globalLogger = newAdapter(os.Stdout)
	})
	return globalLogger
}

func newAdapter(w io.Writer) *zerologAdapter {
	return &zerologAdapter{log: zerolog.New(w).With().Timestamp().Logger()}
}

// SetLevel changes the minimum level of the global logger ("debug", "info", "warn", "error").
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	a := adapter()
	a.log = a.log.Level(lvl)
	return nil
}

// Component returns a logger that tags every line with component=name.
func Component(name string) Interface {
	a := adapter()
	return &zerologAdapter{log: a.log.With().Str("component", name).Logger()}
}

type zerologAdapter struct {
	log zerolog.Logger
}

func (l *zerologAdapter) Infof(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

func (l *zerologAdapter) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l *zerologAdapter) Debugf(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *zerologAdapter) Warnf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}
