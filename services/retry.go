package services

import (
	"context"
	"errors"
	"log/slog"

	"spark_server/models"
)

// retryOnConflict runs fn and, if it lost a commit race, runs it once more
// against fresh state. A second conflict is returned to the caller.
func retryOnConflict(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	err := fn()
	if !errors.Is(err, models.ErrConflict) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	logger.InfoContext(ctx, "retrying after commit conflict", "op", op, "error", err)
	return fn()
}
