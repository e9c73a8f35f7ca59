package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// Logger writes one JSON object per line: timestamp, level, message, and the
// optional service and trace_id fields.
type Logger struct {
	zl      zerolog.Logger
	service string
}

func NewLogger(out io.Writer, service string) *Logger {
	if out == nil {
		out = io.Discard
	}
	service = strings.TrimSpace(service)

	zl := zerolog.New(zerolog.SyncWriter(out)).Level(zerolog.InfoLevel)
	if service != "" {
		zl = zl.With().Str("service", service).Logger()
	}
	return &Logger{zl: zl, service: service}
}

// SetLevel accepts zerolog level names (debug, info, warn, error). An empty
// name leaves the level unchanged.
func (l *Logger) SetLevel(level string) error {
	if l == nil || strings.TrimSpace(level) == "" {
		return nil
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	l.zl = l.zl.Level(parsed)
	return nil
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey, strings.TrimSpace(id))
}

func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

func (l *Logger) Printf(ctx context.Context, format string, v ...any) {
	if l == nil {
		return
	}
	l.log(ctx, zerolog.InfoLevel, fmt.Sprintf(format, v...))
}

func (l *Logger) Println(ctx context.Context, v ...any) {
	if l == nil {
		return
	}
	l.log(ctx, zerolog.InfoLevel, strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *Logger) Debugf(ctx context.Context, format string, v ...any) {
	if l == nil {
		return
	}
	l.log(ctx, zerolog.DebugLevel, fmt.Sprintf(format, v...))
}

func (l *Logger) Warnf(ctx context.Context, format string, v ...any) {
	if l == nil {
		return
	}
	l.log(ctx, zerolog.WarnLevel, fmt.Sprintf(format, v...))
}

func (l *Logger) Errorf(ctx context.Context, format string, v ...any) {
	if l == nil {
		return
	}
	l.log(ctx, zerolog.ErrorLevel, fmt.Sprintf(format, v...))
}

func (l *Logger) Fatalf(ctx context.Context, format string, v ...any) {
	if l == nil {
		os.Exit(1)
	}
	l.log(ctx, zerolog.FatalLevel, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func (l *Logger) log(ctx context.Context, level zerolog.Level, msg string) {
	// WithLevel never exits or panics, even for fatal.
	event := l.zl.WithLevel(level)
	if event == nil {
		return
	}
	event = event.Str("timestamp", time.Now().UTC().Format(time.RFC3339Nano))
	if traceID := CorrelationIDFromContext(ctx); traceID != "" {
		event = event.Str("trace_id", traceID)
	}
	event.Msg(msg)
}
