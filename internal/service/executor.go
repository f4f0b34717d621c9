package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"campaign-engine/internal/gateway"
)

// TokenSource grants permission for one outbound send. Implemented by
// the shared rate limiter.
type TokenSource interface {
	Acquire(ctx context.Context) error
}

// Executor runs exactly one claimed occurrence end to end: renders
// per-recipient content, sends through the rate limiter and gateway,
// retries transient failures per the policy, and aggregates counts.
type Executor struct {
	gateway     gateway.Gateway
	limiter     TokenSource
	policy      RetryPolicy
	fanOut      int
	logger      *slog.Logger
	onDelivered func(ctx context.Context, deliveryID string)
}

func NewExecutor(gw gateway.Gateway, limiter TokenSource, policy RetryPolicy, fanOut int, logger *slog.Logger, onDelivered func(ctx context.Context, deliveryID string)) *Executor {
	if fanOut <= 0 {
		fanOut = 8
	}
	return &Executor{
		gateway:     gw,
		limiter:     limiter,
		policy:      policy.withDefaults(),
		fanOut:      fanOut,
		logger:      logger,
		onDelivered: onDelivered,
	}
}

// Execute fans the occurrence out to its recipients. Recipients complete
// in any order; the returned Result covers the whole recipient set.
func (e *Executor) Execute(ctx context.Context, oc Occurrence) Result {
	recipients := oc.Recipients()
	if len(recipients) == 0 {
		return Result{}
	}

	// Probe for capacity before fanning out: a saturated limiter fails
	// the occurrence as a whole instead of leaving it half-attempted.
	if err := e.limiter.Acquire(ctx); err != nil {
		e.logger.Warn("no gateway capacity for occurrence",
			slog.String(oc.Kind(), oc.ID()),
			slog.String("error", err.Error()))
		return Result{Err: err}
	}

	var (
		mtx          sync.Mutex
		sent, failed int
	)
	sem := make(chan struct{}, e.fanOut)
	wg := new(sync.WaitGroup)
	for i, recipient := range recipients {
		prepaid := i == 0 // the probe token pays for the first recipient
		sem <- struct{}{}
		wg.Go(func() {
			defer func() { <-sem }()
			ok := e.sendRecipient(ctx, oc, recipient, prepaid)
			mtx.Lock()
			if ok {
				sent++
			} else {
				failed++
			}
			mtx.Unlock()
		})
	}
	wg.Wait()

	return Result{Sent: sent, Failed: failed}
}

func (e *Executor) sendRecipient(ctx context.Context, oc Occurrence, recipient string, prepaid bool) bool {
	logger := e.logger.With(
		slog.String(oc.Kind(), oc.ID()),
		slog.String("recipient", recipient))

	body, media := oc.Render(recipient)

	maxAttempts := e.policy.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !prepaid || attempt > 1 {
			if err := e.limiter.Acquire(ctx); err != nil {
				logger.Warn("send aborted, no gateway capacity", slog.Int("attempt", attempt), slog.String("error", err.Error()))
				return false
			}
		}

		deliveryID, err := e.gateway.Send(ctx, recipient, body, media)
		if err == nil {
			logger.Info("message sent", slog.Int("attempt", attempt), slog.String("deliveryId", deliveryID))
			if e.onDelivered != nil && deliveryID != "" {
				e.onDelivered(ctx, deliveryID)
			}
			return true
		}

		if gateway.IsPermanent(err) {
			logger.Error("send rejected", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			return false
		}
		if attempt == maxAttempts {
			logger.Error("send retries exhausted", slog.Int("attempts", attempt), slog.String("error", err.Error()))
			return false
		}

		delay := e.policy.Delay(attempt)
		logger.Warn("transient send failure, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return false
		case <-tmr.C:
		}
	}
	return false
}
