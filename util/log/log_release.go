//go:build release

package log

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file location, kept local to avoid importing config from the facade.
const (
	logSubDir   = ".jacket"
	logFileName = "jacket.log"
)

func init() {
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		logger.Fatalf("Failed to get user home directory: %v", err)
	}
	logDir := filepath.Join(userHomeDir, logSubDir)

	// Ensure the log directory exists
	if err := os.MkdirAll(logDir, 0755); err != nil {
		logger.Fatalf("Failed to create log directory: %v", err)
	}

	logger.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, logFileName),
		MaxSize:    10, // MB
		MaxBackups: 2,
		MaxAge:     28, // days
		Compress:   true,
	})
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableColors:    true,
		QuoteEmptyFields: true,
	})
}
