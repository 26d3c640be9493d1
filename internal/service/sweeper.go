package service

import (
	"context"
	"time"

	"github.com/launchkit/identity/pkg/logger"
)

// Sweeper periodically purges expired refresh tokens. Pure housekeeping:
// Consume already rejects expired tokens on read, so correctness never
// depends on the sweep running.
type Sweeper struct {
	tokens   RefreshTokenStore
	interval time.Duration
}

func NewSweeper(tokens RefreshTokenStore, interval time.Duration) *Sweeper {
	return &Sweeper{
		tokens:   tokens,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.InfoWithContext(ctx, "Refresh token sweeper started").
		Duration(s.interval).
		Log()

	for {
		select {
		case <-ctx.Done():
			logger.InfoWithContext(context.Background(), "Refresh token sweeper stopped").
				Log()
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.tokens.DeleteExpired(sweepCtx); err != nil {
		logger.WarnWithContext(sweepCtx, "Refresh token sweep failed").
			Err(err).
			Log()
	}
}
