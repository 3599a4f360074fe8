package util

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Log is the process-wide logger. Commands write through the helpers below.
var Log = newLogger(os.Stderr)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
		ForceColors:     IsTerminal(os.Stderr.Fd()),
		DisableColors:   !IsTerminal(os.Stderr.Fd()),
	})
	return l
}

// SetLogLevel sets the minimum log level to display
func SetLogLevel(level LogLevel) {
	switch level {
	case LevelDebug:
		Log.SetLevel(logrus.DebugLevel)
	case LevelInfo:
		Log.SetLevel(logrus.InfoLevel)
	case LevelWarn:
		Log.SetLevel(logrus.WarnLevel)
	default:
		Log.SetLevel(logrus.ErrorLevel)
	}
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LevelDebug)
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		SetLogLevel(LevelError)
	}
}

// IsQuiet reports whether only errors are shown
func IsQuiet() bool {
	return Log.GetLevel() < logrus.WarnLevel
}

// SetColors enables or disables colored output
func SetColors(enabled bool) {
	if f, ok := Log.Formatter.(*logrus.TextFormatter); ok {
		f.ForceColors = enabled
		f.DisableColors = !enabled
	}
}

// SetLogOutput redirects log output, mostly for tests.
func SetLogOutput(w io.Writer) {
	Log.SetOutput(w)
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	Log.Debugf(format, args...)
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	Log.Infof(format, args...)
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	Log.Warnf(format, args...)
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	Log.Errorf(format, args...)
}

// SuccessLog logs success messages (always shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	Log.WithField("status", "ok").Info(fmt.Sprintf(format, args...))
}

// WithFields returns an entry carrying structured context, e.g. a request id.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return Log.WithFields(logrus.Fields(fields))
}
