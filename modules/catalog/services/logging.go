package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/gamesync/pkg/logging"
)

type loggerKey struct{}

// WithLogger attaches a run-scoped logger to ctx. Services prefer it over
// their constructor logger so every line of one run carries the run fields.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func loggerFromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return nil
	}
	switch typed := ctx.Value(loggerKey{}).(type) {
	case *logrus.Entry:
		return typed
	case *logrus.Logger:
		return logrus.NewEntry(typed)
	default:
		return nil
	}
}

func pickLogger(ctx context.Context, fallback *logrus.Entry) *logrus.Entry {
	if l := loggerFromContext(ctx); l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return logging.Nop()
}
