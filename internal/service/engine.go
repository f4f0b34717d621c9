package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"campaign-engine/internal/domain"
	"campaign-engine/internal/recurrence"
	"campaign-engine/internal/repository/schedule"
)

// ErrNotClaimable is returned by TriggerNow when the item lost the claim
// race or is not in a claimable state.
var ErrNotClaimable = errors.New("item is already claimed or not in a claimable state")

// ErrUnknownKind is returned for kinds other than campaign/message.
var ErrUnknownKind = errors.New("unknown item kind")

// ExecutionSummary reports one synchronous dispatch run.
type ExecutionSummary struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	MessagesSent   int       `json:"messages_sent"`
	MessagesFailed int       `json:"messages_failed"`
	ExecutedAt     time.Time `json:"executed_at"`
}

// StatusReport is the console view of one record.
type StatusReport struct {
	Record         any                   `json:"record"`
	RecentLogs     []domain.ExecutionLog `json:"recent_logs"`
	NextOccurrence *time.Time            `json:"next_occurrence,omitempty"`
}

type Engine interface {
	Start()
	Stop()
	IsRunning() bool
	TriggerNow(ctx context.Context, kind, id string) (*ExecutionSummary, error)
	Status(kind, id string) (*StatusReport, error)
}

type Config struct {
	TickInterval time.Duration
	Workers      int
	QueueSize    int
	StaleAfter   time.Duration
	RecentLogs   int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
	if c.RecentLogs <= 0 {
		c.RecentLogs = 10
	}
	return c
}

type engine struct {
	repo     schedule.Repository
	executor *Executor
	cfg      Config
	logger   *slog.Logger

	mtx     sync.Mutex
	running bool
	stopCh  chan struct{}

	staleResets atomic.Int64
}

func NewEngine(repo schedule.Repository, executor *Executor, cfg Config, logger *slog.Logger) Engine {
	return &engine{
		repo:     repo,
		executor: executor,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Start begins the tick loop and worker pool. Idempotent: a running
// engine is left untouched.
func (e *engine) Start() {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})

	queue := make(chan Occurrence, e.cfg.QueueSize)
	stopCh := e.stopCh

	// workers exit on their own once the run goroutine closes the queue
	for i := 0; i < e.cfg.Workers; i++ {
		go e.worker(queue, i)
	}

	go e.run(stopCh, queue)

	e.logger.Info("engine started",
		slog.Duration("tickInterval", e.cfg.TickInterval),
		slog.Int("workers", e.cfg.Workers))
}

// Stop prevents further ticks and claims. Already-claimed occurrences in
// the queue are drained to completion by the workers; Stop does not wait
// for them.
func (e *engine) Stop() {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if !e.running {
		return
	}
	e.running = false
	close(e.stopCh)
	e.stopCh = nil

	e.logger.Info("engine stopped")
}

func (e *engine) IsRunning() bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.running
}

func (e *engine) run(stopCh <-chan struct{}, queue chan Occurrence) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	// In-flight sends survive Stop, so occurrences never run under a
	// cancellable context.
	ctx := context.Background()

	// initial tick
	e.tick(ctx, queue)

	for {
		// a closed stopCh wins over a pending tick
		select {
		case <-stopCh:
			close(queue)
			return
		default:
		}

		select {
		case <-ticker.C:
			// Stop may have raced the tick; re-check so no tick fires
			// after Stop returns.
			select {
			case <-stopCh:
				close(queue)
				return
			default:
			}
			e.tick(ctx, queue)
		case <-stopCh:
			close(queue)
			return
		}
	}
}

func (e *engine) worker(queue <-chan Occurrence, idx int) {
	for oc := range queue {
		e.runOccurrence(context.Background(), oc)
	}
	e.logger.Debug("worker drained", slog.Int("worker", idx))
}

// tick scans the store for due work and claims it. Store read failures
// skip the remainder of this tick; the loop keeps running.
func (e *engine) tick(ctx context.Context, queue chan<- Occurrence) {
	now := time.Now().UTC()

	if n, err := e.repo.ResetStaleProcessing(now.Add(-e.cfg.StaleAfter)); err != nil {
		e.logger.Error("failed to reset stale claims", slog.String("error", err.Error()))
	} else if n > 0 {
		// indicates a prior crash mid-dispatch
		total := e.staleResets.Add(n)
		e.logger.Warn("reset stale processing records", slog.Int64("count", n), slog.Int64("totalResets", total))
	}
	if n, err := e.repo.ResetStaleCampaigns(now.Add(-e.cfg.StaleAfter)); err != nil {
		e.logger.Error("failed to reset stale campaign claims", slog.String("error", err.Error()))
	} else if n > 0 {
		total := e.staleResets.Add(n)
		e.logger.Warn("reset stale campaign claims", slog.Int64("count", n), slog.Int64("totalResets", total))
	}

	// Expired active campaigns have no further occurrences; close them out.
	expired, err := e.repo.ExpiredActiveCampaigns(now)
	if err != nil {
		e.logger.Error("failed to query expired campaigns", slog.String("error", err.Error()))
	} else {
		for _, c := range expired {
			if done, err := e.repo.CompleteCampaign(c.ID); err != nil {
				e.logger.Error("failed to complete campaign", slog.String("campaign", c.ID), slog.String("error", err.Error()))
			} else if done {
				e.logger.Info("campaign completed", slog.String("campaign", c.ID))
			}
		}
	}

	campaigns, err := e.repo.DueCampaigns(now)
	if err != nil {
		e.logger.Error("failed to query due campaigns, skipping tick", slog.String("error", err.Error()))
		return
	}
	messages, err := e.repo.DueMessages(now)
	if err != nil {
		e.logger.Error("failed to query due messages, skipping tick", slog.String("error", err.Error()))
		return
	}

	for _, c := range campaigns {
		e.claimAndEnqueue(newCampaignOccurrence(c, e.repo), now, queue)
	}
	for _, m := range messages {
		e.claimAndEnqueue(newMessageOccurrence(m, e.repo), now, queue)
	}
}

func (e *engine) claimAndEnqueue(oc Occurrence, now time.Time, queue chan<- Occurrence) {
	if !oc.Due(now) {
		return
	}
	claimed, err := oc.Claim()
	if err != nil {
		e.logger.Error("claim failed", slog.String(oc.Kind(), oc.ID()), slog.String("error", err.Error()))
		return
	}
	if !claimed {
		// another instance owns this occurrence
		return
	}

	select {
	case queue <- oc:
	default:
		// keep the scan non-blocking; the release makes the item
		// claimable again on a later tick instead of stranding it
		e.logger.Warn("dispatch queue full, releasing claim", slog.String(oc.Kind(), oc.ID()))
		if err := oc.Release(); err != nil {
			e.logger.Error("failed to release claim", slog.String(oc.Kind(), oc.ID()), slog.String("error", err.Error()))
		}
	}
}

func (e *engine) runOccurrence(ctx context.Context, oc Occurrence) Result {
	start := time.Now()
	logger := e.logger.With(slog.String(oc.Kind(), oc.ID()))

	result := e.executor.Execute(ctx, oc)
	now := time.Now().UTC()
	if err := oc.Finalize(result, now); err != nil {
		logger.Error("failed to finalize occurrence", slog.String("error", err.Error()))
	}

	switch {
	case result.Err != nil:
		logger.Warn("occurrence not attempted", slog.String("error", result.Err.Error()), slog.Duration("dur", time.Since(start)))
	case result.Failed > 0:
		logger.Warn("occurrence executed with failures",
			slog.Int("sent", result.Sent), slog.Int("failed", result.Failed), slog.Duration("dur", time.Since(start)))
	default:
		logger.Info("occurrence executed", slog.Int("sent", result.Sent), slog.Duration("dur", time.Since(start)))
	}
	return result
}

// TriggerNow forces immediate execution of one item through the same
// claim -> execute -> finalize pipeline as the tick loop, so a manual
// trigger can never double-send against a concurrent tick.
func (e *engine) TriggerNow(ctx context.Context, kind, id string) (*ExecutionSummary, error) {
	oc, err := e.occurrenceFor(kind, id)
	if err != nil {
		return nil, err
	}

	claimed, err := oc.Claim()
	if err != nil {
		return nil, fmt.Errorf("failed to claim %s %s: %w", kind, id, err)
	}
	if !claimed {
		return nil, ErrNotClaimable
	}

	result := e.runOccurrence(ctx, oc)
	if result.Err != nil {
		return nil, fmt.Errorf("occurrence was not attempted: %w", result.Err)
	}
	return &ExecutionSummary{
		ID:             oc.ID(),
		Kind:           oc.Kind(),
		MessagesSent:   result.Sent,
		MessagesFailed: result.Failed,
		ExecutedAt:     time.Now().UTC(),
	}, nil
}

// Status returns the record, its recent execution logs, and the computed
// next occurrence for recurring messages.
func (e *engine) Status(kind, id string) (*StatusReport, error) {
	switch kind {
	case KindCampaign:
		c, err := e.repo.GetCampaign(id)
		if err != nil {
			return nil, err
		}
		logs, err := e.repo.RecentExecutionLogs(id, e.cfg.RecentLogs)
		if err != nil {
			return nil, err
		}
		return &StatusReport{Record: c, RecentLogs: logs}, nil
	case KindMessage:
		m, err := e.repo.GetMessage(id)
		if err != nil {
			return nil, err
		}
		logs, err := e.repo.RecentExecutionLogs(id, e.cfg.RecentLogs)
		if err != nil {
			return nil, err
		}
		report := &StatusReport{Record: m, RecentLogs: logs}
		if next, ok := recurrence.Next(m.SendAt, m.RepeatType); ok {
			report.NextOccurrence = &next
		}
		return report, nil
	}
	return nil, ErrUnknownKind
}

func (e *engine) occurrenceFor(kind, id string) (Occurrence, error) {
	switch kind {
	case KindCampaign:
		c, err := e.repo.GetCampaign(id)
		if err != nil {
			return nil, err
		}
		return newCampaignOccurrence(*c, e.repo), nil
	case KindMessage:
		m, err := e.repo.GetMessage(id)
		if err != nil {
			return nil, err
		}
		return newMessageOccurrence(*m, e.repo), nil
	}
	return nil, ErrUnknownKind
}
