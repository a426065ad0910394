// Package sweeper periodically retries waiting_funds requests against the
// live pool, so newly confirmed donations reach stuck requests without an
// admin manually rechecking each one.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Rechecker is the single service operation the sweep drives.
type Rechecker interface {
	RecheckWaiting(ctx context.Context) error
}

type Sweeper struct {
	service  Rechecker
	interval time.Duration
	logger   *slog.Logger
}

func New(service Rechecker, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run sweeps on the configured interval until the context is cancelled. A
// failed sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.service.RecheckWaiting(ctx); err != nil {
				if s.logger != nil {
					s.logger.ErrorContext(ctx, "fund recheck sweep failed", "error", err)
				}
			}
		}
	}
}
