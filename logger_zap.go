package libsse

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger adapts a zap.SugaredLogger to the logger interface.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// WrapZap wraps an existing zap logger so it can be injected anywhere the
// library logs.
func WrapZap(l *zap.Logger) logger {
	return &zapLogger{sugar: l.Sugar()}
}

// NewZapLogger builds a production JSON logger at the given level
// ("debug", "info", "warn", "error") writing to stderr.
func NewZapLogger(levelName string) logger {
	level := zapcore.InfoLevel
	switch strings.ToLower(levelName) {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(os.Stderr),
		level,
	)

	return WrapZap(zap.New(core))
}

func (l *zapLogger) WithField(key string, value any) logger {
	return &zapLogger{sugar: l.sugar.With(key, value)}
}

func (l *zapLogger) Debug(args ...any) { l.sugar.Debug(args...) }

func (l *zapLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }

func (l *zapLogger) Debugln(args ...any) { l.sugar.Debugln(args...) }

func (l *zapLogger) Info(args ...any) { l.sugar.Info(args...) }

func (l *zapLogger) Infof(format string, args ...any) { l.sugar.Infof(format, args...) }

func (l *zapLogger) Infoln(args ...any) { l.sugar.Infoln(args...) }

func (l *zapLogger) Warn(args ...any) { l.sugar.Warn(args...) }

func (l *zapLogger) Warnf(format string, args ...any) { l.sugar.Warnf(format, args...) }

func (l *zapLogger) Warnln(args ...any) { l.sugar.Warnln(args...) }

func (l *zapLogger) Error(args ...any) { l.sugar.Error(args...) }

func (l *zapLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

func (l *zapLogger) Errorln(args ...any) { l.sugar.Errorln(args...) }
