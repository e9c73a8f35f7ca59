package core

import "context"

// Logger is the subset of infra.Logger the core needs.
type Logger interface {
	Printf(ctx context.Context, format string, v ...any)
	Println(ctx context.Context, v ...any)
	Debugf(ctx context.Context, format string, v ...any)
	Warnf(ctx context.Context, format string, v ...any)
}
