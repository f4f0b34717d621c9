// Package ratelimit provides the token bucket shared by all dispatch
// workers, limiting outbound sends per rolling hour.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrSaturated is returned when a token cannot be acquired within the
// bounded wait.
var ErrSaturated = errors.New("rate limiter saturated")

type Limiter struct {
	rl      *rate.Limiter
	maxWait time.Duration
}

// New creates a limiter allowing perHour sends per rolling hour with the
// given burst. Acquire waits at most maxWait for a token.
func New(perHour, burst int, maxWait time.Duration) *Limiter {
	if perHour <= 0 {
		perHour = 3600
	}
	if burst <= 0 {
		burst = 1
	}
	if maxWait <= 0 {
		maxWait = time.Second * 30
	}
	return &Limiter{
		rl:      rate.NewLimiter(rate.Limit(float64(perHour)/3600.0), burst),
		maxWait: maxWait,
	}
}

// Acquire blocks until a send token is available, the bounded wait
// elapses (ErrSaturated), or ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.rl.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrSaturated, err)
	}
	return nil
}
