package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Package log is the logging facade for the service. All packages log
// through these helpers; the build-tagged setup files decide where the
// output goes and at what level.

var logger = logrus.New()

// SetOutput redirects all log output. Used by tests to capture lines.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetLevel changes the minimum level that is written.
func SetLevel(level logrus.Level) {
	logger.SetLevel(level)
}

// Print logs at info level.
func Print(v ...interface{}) {
	logger.Info(v...)
}

// Printf logs a formatted message at info level.
func Printf(format string, v ...interface{}) {
	logger.Infof(format, v...)
}

// Println logs at info level.
func Println(v ...interface{}) {
	logger.Infoln(v...)
}

// Debug logs at debug level.
func Debug(v ...interface{}) {
	logger.Debug(v...)
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, v ...interface{}) {
	logger.Debugf(format, v...)
}

// Warnf logs a formatted message at warning level.
func Warnf(format string, v ...interface{}) {
	logger.Warnf(format, v...)
}

// Error logs at error level.
func Error(v ...interface{}) {
	logger.Error(v...)
}

// Errorf logs a formatted message at error level.
func Errorf(format string, v ...interface{}) {
	logger.Errorf(format, v...)
}

// Fatal logs at fatal level and exits.
func Fatal(v ...interface{}) {
	logger.Fatal(v...)
}

// Fatalf logs a formatted message at fatal level and exits.
func Fatalf(format string, v ...interface{}) {
	logger.Fatalf(format, v...)
}

// Fatalln logs at fatal level and exits.
func Fatalln(v ...interface{}) {
	logger.Fatalln(v...)
}
