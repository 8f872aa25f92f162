// Package log is a small structured-logging facade over logrus, shaped
// after navidrome's internal log package: every call site passes a
// context.Context and an ordered list of key/value pairs rather than a
// pre-formatted string.
package log

import (
	"context"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

type ctxKey int

const fieldsKey ctxKey = 0

// NewContext returns a child context carrying additional fields that every
// subsequent log call made with it will include automatically. Used to
// thread a UDN or SID through a call chain without repeating it at every
// call site.
func NewContext(ctx context.Context, kv ...interface{}) context.Context {
	return context.WithValue(ctx, fieldsKey, mergeFields(fieldsFrom(ctx), kv))
}

func fieldsFrom(ctx context.Context) logrus.Fields {
	if ctx == nil {
		return logrus.Fields{}
	}
	f, _ := ctx.Value(fieldsKey).(logrus.Fields)
	if f == nil {
		return logrus.Fields{}
	}
	return f
}

func mergeFields(base logrus.Fields, kv []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(base)+len(kv)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out[key] = kv[i+1]
	}
	return out
}

func entry(ctx context.Context, kv []interface{}) *logrus.Entry {
	return base.WithFields(mergeFields(fieldsFrom(ctx), kv))
}

// Debug logs at debug level. ctx may be nil for call sites with no request
// scope (process-lifetime background tasks).
func Debug(ctx context.Context, msg string, kv ...interface{}) {
	entry(ctx, kv).Debug(msg)
}

// Info logs at info level.
func Info(ctx context.Context, msg string, kv ...interface{}) {
	entry(ctx, kv).Info(msg)
}

// Warn logs at warn level.
func Warn(ctx context.Context, msg string, kv ...interface{}) {
	entry(ctx, kv).Warn(msg)
}

// Error logs at error level. err, if non-nil, is attached as the "error"
// field; errors above warn must always carry human-readable context per
// the error-handling design (spec.md §7).
func Error(ctx context.Context, msg string, err error, kv ...interface{}) {
	e := entry(ctx, kv)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}

// SetLevel adjusts the facade's verbosity; intended for cmd/ wrappers only.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}
