package scheduler

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.SugaredLogger
}

func newCronLogger(l *zap.Logger) cron.Logger {
	return &cronLogger{logger: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (c *cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debugw(msg, keysAndValues...)
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
