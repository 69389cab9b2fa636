package hconn

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger interface is to abstract the logging from hconn. Gives control to
// the hconn users, choice of the logger.
type Logger interface {
	Errorf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

// NewLogger returns a Logger writing structured lines to output. Debug
// messages are dropped unless debug is set.
func NewLogger(output io.Writer, debug bool) Logger {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zl := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return NewLoggerFromZerolog(zl)
}

// NewLoggerFromZerolog returns a Logger backed by zl.
func NewLoggerFromZerolog(zl zerolog.Logger) Logger {
	return &logger{zl: zl.With().Str("component", "hconn").Logger()}
}

func createLogger() Logger {
	return NewLogger(os.Stderr, false)
}

var _ Logger = (*logger)(nil)

type disableLogger struct{}

func (l *disableLogger) Errorf(format string, v ...interface{}) {}
func (l *disableLogger) Warnf(format string, v ...interface{})  {}
func (l *disableLogger) Debugf(format string, v ...interface{}) {}

type logger struct {
	zl zerolog.Logger
}

func (l *logger) Errorf(format string, v ...interface{}) {
	l.output(l.zl.Error(), format, v...)
}

func (l *logger) Warnf(format string, v ...interface{}) {
	l.output(l.zl.Warn(), format, v...)
}

func (l *logger) Debugf(format string, v ...interface{}) {
	l.output(l.zl.Debug(), format, v...)
}

func (l *logger) output(e *zerolog.Event, format string, v ...interface{}) {
	if len(v) == 0 {
		e.Msg(format)
		return
	}
	e.Msg(fmt.Sprintf(format, v...))
}

// exchangeLogger prefixes every message with the exchange id.
type exchangeLogger struct {
	Logger
	id string
}

func (l exchangeLogger) Errorf(format string, v ...interface{}) {
	l.Logger.Errorf("[%s] "+format, append([]interface{}{l.id}, v...)...)
}

func (l exchangeLogger) Warnf(format string, v ...interface{}) {
	l.Logger.Warnf("[%s] "+format, append([]interface{}{l.id}, v...)...)
}

func (l exchangeLogger) Debugf(format string, v ...interface{}) {
	l.Logger.Debugf("[%s] "+format, append([]interface{}{l.id}, v...)...)
}
