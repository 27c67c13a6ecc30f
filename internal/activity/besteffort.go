package activity

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// BestEffort runs fn and swallows any failure, including a panic, after
// logging it. The swallowed error is returned only so callers can count it;
// it must not be propagated.
func BestEffort(ctx context.Context, log *zap.Logger, name string, fn func(context.Context) error) (swallowed error) {
	defer func() {
		if r := recover(); r != nil {
			swallowed = fmt.Errorf("panic in %s: %v", name, r)
			log.Warn("best-effort operation panicked", zap.String("op", name), zap.Any("panic", r))
		}
	}()

	if err := fn(ctx); err != nil {
		if ctx.Err() == nil {
			log.Warn("best-effort operation failed", zap.String("op", name), zap.Error(err))
		}
		return err
	}
	return nil
}
