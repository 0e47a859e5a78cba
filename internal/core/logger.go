package core

import (
	"log/slog"
	"os"
)

// Logger provides structured logging for skiff
type Logger struct {
	*slog.Logger
	components map[string]*slog.Logger
}

// NewLogger creates a new logger instance
func NewLogger() *Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return &Logger{
		Logger:     slog.New(handler),
		components: make(map[string]*slog.Logger),
	}
}

// NewTestLogger creates a logger quiet enough for test output
// (warnings and errors only)
func NewTestLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})

	return &Logger{
		Logger:     slog.New(handler),
		components: make(map[string]*slog.Logger),
	}
}

// ForComponent returns a logger scoped to a named component
func (l *Logger) ForComponent(name string) *Logger {
	if componentLogger, exists := l.components[name]; exists {
		return &Logger{
			Logger:     componentLogger,
			components: l.components,
		}
	}

	componentLogger := l.Logger.With("component", name)
	l.components[name] = componentLogger

	return &Logger{
		Logger:     componentLogger,
		components: l.components,
	}
}

// WithFeed returns a logger with feed context attached
func (l *Logger) WithFeed(feedID string, url string) *Logger {
	return &Logger{
		Logger:     l.Logger.With("feed_id", feedID, "feed_url", url),
		components: l.components,
	}
}
