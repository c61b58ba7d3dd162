// SPDX-License-Identifier: MIT

// Package log is the process-wide leveled logger. The level is held in an
// atomic so the hot paths (capture stage, analyzer poll loop) can skip
// formatting entirely when a message would be filtered out. Output goes
// through logrus so the parent process and the capture child share one
// line format on stderr.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

var (
	currentLevel atomic.Uint32
	logger       = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	l.SetLevel(logrus.DebugLevel) // filtering happens in shouldLog
	return l
}

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects log output. The capture child keeps stderr because
// stdout carries the feature channel.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetComponent tags every subsequent line with a component field, used by
// the capture child to distinguish its lines from the parent's.
func SetComponent(name string) {
	logger.ReplaceHooks(logrus.LevelHooks{})
	if name == "" {
		return
	}
	logger.AddHook(componentHook(name))
}

type componentHook string

func (h componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h componentHook) Fire(e *logrus.Entry) error {
	e.Data["component"] = string(h)
	return nil
}

func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func logf(level LogLevel, format string, v ...interface{}) {
	if shouldLog(level) {
		logger.Log(level.logrus(), fmt.Sprintf(format, v...))
	}
}

func logln(level LogLevel, v ...interface{}) {
	if shouldLog(level) {
		logger.Log(level.logrus(), fmt.Sprint(v...))
	}
}

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...interface{}) { logf(LevelDebug, format, v...) }

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...interface{}) { logf(LevelInfo, format, v...) }

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...interface{}) { logf(LevelWarn, format, v...) }

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...interface{}) { logf(LevelError, format, v...) }

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...interface{}) {
	logger.Fatalf(format, v...)
}

func Debug(v ...interface{}) { logln(LevelDebug, v...) }
func Info(v ...interface{})  { logln(LevelInfo, v...) }
func Warn(v ...interface{})  { logln(LevelWarn, v...) }
func Error(v ...interface{}) { logln(LevelError, v...) }

// Fatal logs a fatal message and exits the application.
func Fatal(v ...interface{}) {
	logger.Fatal(v...)
}
