package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the structured logger used across rally.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
	With(keyvals ...any) *charmlog.Logger
}

// Config controls logger construction
type Config struct {
	Level  string    // debug, info, warn, error
	Output io.Writer // defaults to stderr so stdout stays machine-readable
	JSON   bool
}

type ctxKey struct{}

var (
	mu         sync.RWMutex
	defaultLog Logger = New(Config{})
)

// New creates a charm logger from cfg
func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	l := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           ParseLevel(cfg.Level),
	})
	if cfg.JSON {
		l.SetFormatter(charmlog.JSONFormatter)
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return charmlog.New(io.Discard)
}

// ParseLevel maps a level name to a charm log level, defaulting to info.
func ParseLevel(level string) charmlog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return charmlog.DebugLevel
	case "warn", "warning":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// Init replaces the process-wide default logger.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	defaultLog = New(cfg)
}

// Default returns the process-wide logger.
func Default() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLog
}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or the default.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
			return l
		}
	}
	return Default()
}
