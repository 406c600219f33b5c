// Package qzap provides a qgo.Logger backed by a zap logger, so the fabric
// logs through the same pipeline as the rest of an application.
package qzap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fabriq-io/fabriq/pkg/qgo"
)

// Logger adapts a zap logger to the fabric's Logger interface. Key/value
// pairs are logged as loosely typed fields.
type Logger struct {
	zl    *zap.Logger
	sugar *zap.SugaredLogger
}

// New returns a Logger over zl.
func New(zl *zap.Logger) *Logger {
	return &Logger{zl: zl, sugar: zl.Sugar()}
}

// Level reports the most verbose level the underlying zap core enables.
func (l *Logger) Level() qgo.LogLevel {
	core := l.zl.Core()
	switch {
	case core.Enabled(zapcore.DebugLevel):
		return qgo.LogLevelDebug
	case core.Enabled(zapcore.InfoLevel):
		return qgo.LogLevelInfo
	case core.Enabled(zapcore.WarnLevel):
		return qgo.LogLevelWarn
	case core.Enabled(zapcore.ErrorLevel):
		return qgo.LogLevelError
	}
	return qgo.LogLevelNone
}

func (l *Logger) Log(level qgo.LogLevel, msg string, keyvals ...any) {
	switch level {
	case qgo.LogLevelDebug:
		l.sugar.Debugw(msg, keyvals...)
	case qgo.LogLevelInfo:
		l.sugar.Infow(msg, keyvals...)
	case qgo.LogLevelWarn:
		l.sugar.Warnw(msg, keyvals...)
	case qgo.LogLevelError:
		l.sugar.Errorw(msg, keyvals...)
	}
}
