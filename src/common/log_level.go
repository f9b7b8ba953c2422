package common

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel parses a string into a Logrus log level. Matching is case
// insensitive so that "INFO" coming from a process command line works as well
// as "info" from a config file.
func LogLevel(l string) logrus.Level {
	switch strings.ToLower(l) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
