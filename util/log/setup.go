//go:build !release

package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}
