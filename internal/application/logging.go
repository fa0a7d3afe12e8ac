package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/lab-portal/internal/logging"
	"github.com/example/lab-portal/internal/persistence"
	"github.com/example/lab-portal/internal/scheduler"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrPreviewExpired):
		return "preview_expired"
	case errors.Is(err, persistence.ErrUnavailable):
		return "store_unavailable"
	}

	var conflict *scheduler.ConflictError
	if errors.As(err, &conflict) {
		return "conflict"
	}
	var past *scheduler.PastSlotError
	if errors.As(err, &past) {
		return "past_slot"
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
