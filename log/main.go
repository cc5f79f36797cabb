// Package log provides logging services. All logging goes through this layer so that we can
// easily change the logging implementation.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (level LogLevel) String() string {
	if level < TraceLevel || level > FatalLevel {
		return "unknown"
	}
	return [...]string{"trace", "debug", "info", "warn", "error", "fatal"}[level]
}

// Logger writes trace..info to one writer and warn..fatal to another.
type Logger struct {
	logLevel LogLevel
	out      *logrus.Entry
	err      *logrus.Entry
}

func newBackend(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.TraceLevel) // filtering happens in Logger
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return l
}

func NewLogger(infoOutput, errorOutput io.Writer) *Logger {
	return &Logger{
		logLevel: InfoLevel,
		out:      logrus.NewEntry(newBackend(infoOutput)),
		err:      logrus.NewEntry(newBackend(errorOutput)),
	}
}

func NewWithPrefix(infoOutput, errorOutput io.Writer, prefix string) *Logger {
	l := NewLogger(infoOutput, errorOutput)
	l.out = l.out.WithField("module", prefix)
	l.err = l.err.WithField("module", prefix)
	return l
}

// WithPrefix returns a copy of the logger with another module prefix, keeping the level.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{
		logLevel: l.logLevel,
		out:      l.out.WithField("module", prefix),
		err:      l.err.WithField("module", prefix),
	}
}

var defaultLogger *Logger

func init() {
	defaultLogger = NewLogger(os.Stdout, os.Stderr)
}

// Default returns the package level logger.
func Default() *Logger {
	return defaultLogger
}

func Trace(v ...interface{}) {
	defaultLogger.Trace(v...)
}

func Debug(v ...interface{}) {
	defaultLogger.Debug(v...)
}

func Info(v ...interface{}) {
	defaultLogger.Info(v...)
}

func Warn(v ...interface{}) {
	defaultLogger.Warn(v...)
}

func Error(v ...interface{}) {
	defaultLogger.Error(v...)
}

func Fatal(v ...interface{}) {
	defaultLogger.Fatal(v...)
}

func Tracef(format string, v ...interface{}) {
	defaultLogger.Tracef(format, v...)
}

func Debugf(format string, v ...interface{}) {
	defaultLogger.Debugf(format, v...)
}

func Infof(format string, v ...interface{}) {
	defaultLogger.Infof(format, v...)
}

func Warnf(format string, v ...interface{}) {
	defaultLogger.Warnf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	defaultLogger.Errorf(format, v...)
}

func Fatalf(format string, v ...interface{}) {
	defaultLogger.Fatalf(format, v...)
}

// Printf logs at info level. It makes the Logger usable as a kafka-go logger.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

func (l *Logger) Tracef(format string, v ...interface{}) {
	if l.logLevel <= TraceLevel {
		l.out.Tracef(format, v...)
	}
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.logLevel <= DebugLevel {
		l.out.Debugf(format, v...)
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if l.logLevel <= InfoLevel {
		l.out.Infof(format, v...)
	}
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.logLevel <= WarnLevel {
		l.err.Warnf(format, v...)
	}
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.logLevel <= ErrorLevel {
		l.err.Errorf(format, v...)
	}
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.err.Fatalf(format, v...)
}

func (l *Logger) Trace(v ...interface{}) {
	if l.logLevel <= TraceLevel {
		l.out.Trace(v...)
	}
}

func (l *Logger) Debug(v ...interface{}) {
	if l.logLevel <= DebugLevel {
		l.out.Debug(v...)
	}
}

func (l *Logger) Info(v ...interface{}) {
	if l.logLevel <= InfoLevel {
		l.out.Info(v...)
	}
}

func (l *Logger) Warn(v ...interface{}) {
	if l.logLevel <= WarnLevel {
		l.err.Warn(v...)
	}
}

func (l *Logger) Error(v ...interface{}) {
	if l.logLevel <= ErrorLevel {
		l.err.Error(v...)
	}
}

func (l *Logger) Fatal(v ...interface{}) {
	l.err.Fatal(v...)
}

func ParseLevel(level string) (LogLevel, error) {
	switch level {
	case "": // Default choice.
		return InfoLevel, nil
	case "trace":
		return TraceLevel, nil
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown loglevel: %s", level)
}

func (l *Logger) SetLevelFromString(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)
	return nil
}

func (l *Logger) SetLevel(level LogLevel) {
	l.logLevel = level
}

func (l *Logger) Level() LogLevel {
	return l.logLevel
}

func SetLevelFromString(level string) error {
	return defaultLogger.SetLevelFromString(level)
}

func SetLevel(level LogLevel) {
	defaultLogger.SetLevel(level)
}
