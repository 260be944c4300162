package kafka

import (
	"context"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Logger forwards franz-go client logs to slog.
type Logger struct {
	logger *slog.Logger
	level  kgo.LogLevel
}

var _ kgo.Logger = (*Logger)(nil)

// NewLogger creates a Logger emitting client logs at level and above.
func NewLogger(logger *slog.Logger, level kgo.LogLevel) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With("component", "kafka"), level: level}
}

func (l *Logger) Level() kgo.LogLevel { return l.level }

func (l *Logger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	l.logger.Log(context.Background(), toSlogLevel(level), msg, keyvals...)
}

func toSlogLevel(level kgo.LogLevel) slog.Level {
	switch level {
	case kgo.LogLevelError:
		return slog.LevelError
	case kgo.LogLevelWarn:
		return slog.LevelWarn
	case kgo.LogLevelInfo:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
