package serverapp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reportgen/internal/logging"
)

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack []cleanupStep

type cleanupStep struct {
	name    string
	release func(context.Context) error
}

func (s *cleanupStack) push(name string, release func(context.Context) error) {
	*s = append(*s, cleanupStep{name: name, release: release})
}

// run releases every step even when earlier ones fail, and returns the names
// of the steps that failed.
func (s cleanupStack) run(ctx context.Context, logger *logging.Logger) []string {
	var failed []string
	for i := len(s) - 1; i >= 0; i-- {
		step := s[i]
		started := time.Now()
		err := step.release(ctx)
		if logger == nil {
			if err != nil {
				failed = append(failed, step.name)
			}
			continue
		}
		if err != nil {
			failed = append(failed, step.name)
			logger.Warn("cleanup error",
				slog.String("component", step.name),
				slog.String("error", err.Error()))
			continue
		}
		logger.Debug("released "+step.name, slog.Duration("took", time.Since(started)))
	}
	return failed
}

// Shutdown releases everything Init acquired. Only the first call does work;
// it fails when ctx expires before the cleanup finishes.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		started := time.Now()
		failed := cleanup.run(ctx, a.logger)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("shutdown did not finish: %w", ctxErr)
		}
		if a.logger != nil {
			a.logger.Info("shutdown complete",
				slog.Duration("took", time.Since(started)),
				slog.Any("failed", failed))
		}
	})

	return err
}
