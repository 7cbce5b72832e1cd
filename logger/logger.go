package logger

import (
	"fmt"
	"strings"

	"github.com/codacy-acme/gl-repo-reporter/config"
	"github.com/sirupsen/logrus"
)

// Setup will configure logrus logger
func Setup(cfg config.Config) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if cfg.Logs.OutputLogsAsJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	logrus.SetLevel(StringToLogrusLogType(cfg.Logs.Level))
}

// StringToLogrusLogType will convert string to the right logrus level
func StringToLogrusLogType(logLevel string) logrus.Level {
	logLevelLowerCase := strings.ToLower(logLevel)
	switch logLevelLowerCase {
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

// RestyLogger forwards resty messages to a logrus entry
type RestyLogger struct {
	entry *logrus.Entry
}

// NewRestyLogger tags every resty message with the component field
func NewRestyLogger(component string) *RestyLogger {
	return &RestyLogger{entry: logrus.WithField("component", component)}
}

func (l *RestyLogger) Errorf(format string, v ...interface{}) {
	l.entry.Error(fmt.Sprintf(format, v...))
}

func (l *RestyLogger) Warnf(format string, v ...interface{}) {
	l.entry.Warn(fmt.Sprintf(format, v...))
}

func (l *RestyLogger) Debugf(format string, v ...interface{}) {
	l.entry.Debug(fmt.Sprintf(format, v...))
}
