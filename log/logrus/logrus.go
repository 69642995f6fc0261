// Package logrus adapts a *logrus.Entry to distcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/distcache"
)

var _ distcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New wraps l with a component field; nil selects logrus.StandardLogger().
func New(l *logrus.Logger) LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return LogrusLogger{E: l.WithField("component", "distcache")}
}

func (l LogrusLogger) Debug(msg string, f distcache.Fields) { l.entry(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f distcache.Fields)  { l.entry(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f distcache.Fields)  { l.entry(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f distcache.Fields) { l.entry(f).Error(msg) }

// entry moves an "err" field to logrus' own error key.
func (l LogrusLogger) entry(f distcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			out[logrus.ErrorKey] = err
			continue
		}
		out[k] = v
	}
	return l.E.WithFields(out)
}
