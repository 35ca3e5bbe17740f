package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EarlyLog reports startup failures to stderr before the configured logger
// exists.
type EarlyLog struct {
	log *zap.SugaredLogger
}

func NewEarlyLog() *EarlyLog {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return &EarlyLog{log: l.Sugar()}
}

func (l *EarlyLog) Errorw(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
	_ = l.log.Sync()
}

func (l *EarlyLog) Warnw(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}
