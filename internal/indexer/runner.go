package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"starkcron/internal/metrics"
	"starkcron/internal/model"
	"starkcron/internal/storage"
)

// DefaultInterval is the pause between two cycles.
const DefaultInterval = 20 * time.Second

// Phase is the controller state.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseFetching Phase = "FETCHING"
)

// FeedClient fetches one page of the upstream event feed.
type FeedClient interface {
	FetchPage(ctx context.Context, contract string, page int) (model.Page, error)
}

// Forwarder delivers a non-empty batch of events downstream.
type Forwarder interface {
	Send(ctx context.Context, events []model.Event) error
}

// RunConfig holds runtime settings for the poller.
type RunConfig struct {
	Contract     string
	Interval     time.Duration
	StatePath    string
	StateEnabled bool
}

// CycleResult describes one completed cycle.
type CycleResult struct {
	ID     string
	Pages  int
	Events []model.Event
}

// Runner polls the feed, stores unseen events and forwards them.
type Runner struct {
	cfg       RunConfig
	feed      FeedClient
	store     storage.EventStore
	forwarder Forwarder
	logger    *zap.Logger
	metrics   *metrics.Metrics
	state     *StateStore
	phase     Phase
}

// NewRunner builds a Runner with its dependencies. m may be nil.
func NewRunner(cfg RunConfig, feed FeedClient, store storage.EventStore, forwarder Forwarder, logger *zap.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Runner{
		cfg:       cfg,
		feed:      feed,
		store:     store,
		forwarder: forwarder,
		logger:    logger,
		metrics:   m,
		state:     NewStateStore(cfg.StatePath, cfg.StateEnabled),
		phase:     PhaseIdle,
	}
}

// Phase returns the current controller state.
func (r *Runner) Phase() Phase {
	return r.phase
}

func (r *Runner) validate() error {
	if r.feed == nil {
		return fmt.Errorf("feed client is nil")
	}
	if r.store == nil {
		return fmt.Errorf("store is nil")
	}
	if r.forwarder == nil {
		return fmt.Errorf("forwarder is nil")
	}
	if r.cfg.Contract == "" {
		return fmt.Errorf("contract is required")
	}
	return nil
}

// Run executes cycles until ctx is done or a cycle fails.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}

	r.logger.Info("poller start",
		zap.String("contract", r.cfg.Contract),
		zap.Duration("interval", r.cfg.Interval),
	)

	err := r.loop(ctx)
	if IsShutdown(err) {
		r.reportPending()
	}
	return err
}

func (r *Runner) loop(ctx context.Context) error {
	for {
		start := time.Now()
		result, err := r.RunCycle(ctx)
		r.metrics.ObserveCycle(err, time.Since(start))
		if err != nil {
			return err
		}

		if err := r.state.Save(summarize(result)); err != nil {
			return err
		}

		r.logger.Info("sleeping", zap.String("cycle_id", result.ID), zap.Duration("interval", r.cfg.Interval))
		if err := sleep(ctx, r.cfg.Interval); err != nil {
			return err
		}
	}
}

// RunCycle walks every page of the feed, stores unseen events and forwards
// them in ascending order. Events already stored before the cycle are never
// forwarded by it.
func (r *Runner) RunCycle(ctx context.Context) (CycleResult, error) {
	if err := r.validate(); err != nil {
		return CycleResult{}, err
	}

	result := CycleResult{ID: uuid.NewString()}
	arrival := storage.Arrival{Cycle: time.Now().UnixNano()}
	logger := r.logger.With(zap.String("cycle_id", result.ID))

	r.setPhase(PhaseFetching)
	defer r.setPhase(PhaseIdle)

	logger.Info("cycle start", zap.String("contract", r.cfg.Contract))

	var collected []model.Event
	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		resp, err := r.feed.FetchPage(ctx, r.cfg.Contract, page)
		if err != nil {
			return result, fmt.Errorf("poll feed: %w", err)
		}
		result.Pages++
		r.metrics.PageFetched()

		fresh := 0
		for _, event := range resp.Items {
			exists, err := r.store.Exists(ctx, event.EventID)
			if err != nil {
				return result, fmt.Errorf("check event: %w", err)
			}
			if exists {
				continue
			}
			if err := r.store.Put(ctx, event, arrival); err != nil {
				return result, fmt.Errorf("store event: %w", err)
			}
			arrival.Position++
			collected = append(collected, event)
			fresh++
		}
		r.metrics.NewEvents(fresh)

		logger.Info("page fetched",
			zap.Int("page", page),
			zap.Int("last_page", resp.LastPage),
			zap.Int("items", len(resp.Items)),
			zap.Int("new", fresh),
		)

		// lastPage is re-read on every fetch so pages added mid-cycle are walked too.
		if page >= resp.LastPage {
			break
		}
		page++
	}

	result.Events = orderForDelivery(collected, logger)

	if len(result.Events) > 0 {
		if err := r.deliver(ctx, result.Events); err != nil {
			return result, err
		}
	}

	logger.Info("cycle complete",
		zap.Int("pages", result.Pages),
		zap.Int("new_events", len(result.Events)),
	)
	return result, nil
}

// Replay forwards stored events that have no delivery record, such as those
// stored by a cycle that failed before forwarding.
func (r *Runner) Replay(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, fmt.Errorf("store is nil")
	}
	if r.forwarder == nil {
		return 0, fmt.Errorf("forwarder is nil")
	}

	pending, err := r.store.Pending(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		r.logger.Info("nothing to replay")
		return 0, nil
	}

	r.logger.Info("replay start", zap.Int("events", len(pending)))
	if err := r.deliver(ctx, pending); err != nil {
		return 0, err
	}
	return len(pending), nil
}

// PendingCount returns the number of stored events without a delivery record.
func (r *Runner) PendingCount(ctx context.Context) (int, error) {
	pending, err := r.store.Pending(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// reportPending runs after shutdown, when the run context is already done.
func (r *Runner) reportPending() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := r.PendingCount(ctx)
	if err != nil {
		r.logger.Warn("count pending events", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Warn("events stored but not forwarded, run `starkcron replay`", zap.Int("pending", n))
	}
}

func (r *Runner) deliver(ctx context.Context, events []model.Event) error {
	if err := r.forwarder.Send(ctx, events); err != nil {
		return fmt.Errorf("forward events: %w", err)
	}
	r.metrics.Forwarded(len(events))

	if err := r.store.MarkForwarded(ctx, model.IDs(events)); err != nil {
		return fmt.Errorf("mark forwarded: %w", err)
	}
	return nil
}

func (r *Runner) setPhase(p Phase) {
	r.phase = p
	r.metrics.SetFetching(p == PhaseFetching)
}

func summarize(result CycleResult) CycleState {
	st := CycleState{
		LastCycleID: result.ID,
		Pages:       result.Pages,
		NewEvents:   len(result.Events),
		Forwarded:   len(result.Events) > 0,
	}
	if n := len(result.Events); n > 0 {
		st.LastBlockNumber = result.Events[n-1].BlockNumber
	}
	return st
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsShutdown reports whether err only signals that ctx was cancelled.
func IsShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}
