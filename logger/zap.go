package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapBridge struct {
	logger Logger
}

func (z *zapBridge) Enabled(level zapcore.Level) bool {
	return z.logger.IsLevelEnabled(fromZapLevel(level))
}

func (z *zapBridge) With(fields []zapcore.Field) zapcore.Core {
	return &zapBridge{logger: z.logger.With(fieldsToMap(fields))}
}

func (z *zapBridge) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if z.Enabled(entry.Level) {
		return ce.AddCore(entry, z)
	}
	return ce
}

func (z *zapBridge) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	l := z.logger
	if len(fields) > 0 {
		l = l.With(fieldsToMap(fields))
	}
	switch fromZapLevel(entry.Level) {
	case LevelDebug:
		l.Debug("%s", entry.Message)
	case LevelInfo:
		l.Info("%s", entry.Message)
	case LevelWarn:
		l.Warn("%s", entry.Message)
	default:
		l.Error("%s", entry.Message)
	}
	return nil
}

func (z *zapBridge) Sync() error {
	return nil
}

func fieldsToMap(fields []zapcore.Field) map[string]interface{} {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return enc.Fields
}

func fromZapLevel(level zapcore.Level) LogLevel {
	switch {
	case level < zapcore.InfoLevel:
		return LevelDebug
	case level == zapcore.InfoLevel:
		return LevelInfo
	case level == zapcore.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}

// ToZap returns a zap.Logger instance that will output to the provided logger
func ToZap(logger Logger) *zap.Logger {
	return zap.New(&zapBridge{logger: logger})
}

type fromZap struct {
	z *zap.SugaredLogger
}

// FromZap adapts an existing zap logger so hosts that already log through
// zap can hand it to the cache.
func FromZap(z *zap.Logger) Logger {
	return &fromZap{z: z.Sugar()}
}

func (f *fromZap) With(metadata map[string]interface{}) Logger {
	args := make([]interface{}, 0, len(metadata)*2)
	for k, v := range metadata {
		args = append(args, k, v)
	}
	return &fromZap{z: f.z.With(args...)}
}

func (f *fromZap) WithPrefix(prefix string) Logger {
	return &fromZap{z: f.z.Named(prefix)}
}

func (f *fromZap) Trace(msg string, args ...interface{}) { f.z.Debugf(msg, args...) }
func (f *fromZap) Debug(msg string, args ...interface{}) { f.z.Debugf(msg, args...) }
func (f *fromZap) Info(msg string, args ...interface{})  { f.z.Infof(msg, args...) }
func (f *fromZap) Warn(msg string, args ...interface{})  { f.z.Warnf(msg, args...) }
func (f *fromZap) Error(msg string, args ...interface{}) { f.z.Errorf(msg, args...) }

func (f *fromZap) IsLevelEnabled(level LogLevel) bool {
	if level >= LevelNone {
		return false
	}
	var zl zapcore.Level
	switch level {
	case LevelTrace, LevelDebug:
		zl = zapcore.DebugLevel
	case LevelInfo:
		zl = zapcore.InfoLevel
	case LevelWarn:
		zl = zapcore.WarnLevel
	default:
		zl = zapcore.ErrorLevel
	}
	return f.z.Desugar().Core().Enabled(zl)
}
