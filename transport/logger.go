package transport

import (
	"go.uber.org/zap"
)

// retryLogger adapts zap to retryablehttp.LeveledLogger.
type retryLogger struct {
	log *zap.SugaredLogger
}

func newRetryLogger(logger *zap.Logger) retryLogger {
	return retryLogger{log: logger.Named("transport").Sugar()}
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Infow(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}
