// Package zap adapts a *zap.Logger to distcache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/distcache"
)

var _ distcache.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New wraps l under the "distcache" name; nil selects zap.NewNop().
func New(l *zap.Logger) ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return ZapLogger{L: l.Named("distcache")}
}

func (z ZapLogger) Debug(msg string, f distcache.Fields) { z.write(zapcore.DebugLevel, msg, f) }
func (z ZapLogger) Info(msg string, f distcache.Fields)  { z.write(zapcore.InfoLevel, msg, f) }
func (z ZapLogger) Warn(msg string, f distcache.Fields)  { z.write(zapcore.WarnLevel, msg, f) }
func (z ZapLogger) Error(msg string, f distcache.Fields) { z.write(zapcore.ErrorLevel, msg, f) }

func (z ZapLogger) write(lvl zapcore.Level, msg string, f distcache.Fields) {
	if ce := z.L.Check(lvl, msg); ce != nil {
		ce.Write(zf(f)...)
	}
}

func zf(f distcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	ks := make([]string, 0, len(f))
	for k := range f {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	out := make([]zap.Field, 0, len(f))
	for _, k := range ks {
		switch v := f[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
