package pending

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edgegate/edgegate/internal/fetch"
	"github.com/edgegate/edgegate/internal/observability"
)

// replayTimeout bounds one full replay pass.
const replayTimeout = 5 * time.Minute

// Replayer periodically retries queued submissions against the origin.
// Replays also run on explicit Trigger calls, typically after a request
// to the origin succeeds again.
type Replayer struct {
	store   *Store
	fetcher *fetch.Fetcher
	logger  observability.Logger

	cron    *cron.Cron
	trigger chan struct{}
	stopCh  chan struct{}
}

// NewReplayer creates a replayer over the store. schedule is a cron
// expression (robfig/cron syntax, e.g. "@every 1m").
func NewReplayer(store *Store, fetcher *fetch.Fetcher, schedule string, logger observability.Logger) (*Replayer, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	r := &Replayer{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		cron:    cron.New(),
		trigger: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}

	if _, err := r.cron.AddFunc(schedule, func() {
		r.Trigger()
	}); err != nil {
		return nil, err
	}

	return r, nil
}

// Start begins scheduled replays and the trigger loop.
func (r *Replayer) Start() {
	r.cron.Start()
	go r.loop()
}

// Stop halts the schedule and the trigger loop.
func (r *Replayer) Stop() {
	r.cron.Stop()
	close(r.stopCh)
}

// Trigger requests an immediate replay pass. Coalesces with a pass that
// is already pending.
func (r *Replayer) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Replayer) loop() {
	for {
		select {
		case <-r.stopCh:
			return
		case <-r.trigger:
			ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
			r.ReplayAll(ctx)
			cancel()
		}
	}
}

// ReplayAll attempts every queued submission once. A submission is removed
// on success and on permanent failure; transient failures keep it queued
// for the next pass.
func (r *Replayer) ReplayAll(ctx context.Context) {
	subs, err := r.store.List(ctx)
	if err != nil {
		r.logger.Error("failed to list pending submissions", observability.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	r.logger.Info("replaying pending submissions", observability.Int("count", len(subs)))

	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}

		if err := r.store.MarkAttempt(ctx, sub.ID); err != nil {
			r.logger.Warn("failed to mark replay attempt",
				observability.String("id", sub.ID),
				observability.Error(err),
			)
		}

		resp, err := r.fetcher.Do(ctx, sub.Method, sub.URL, sub.Headers, sub.Body)
		switch {
		case err == nil && resp != nil && resp.IsSuccess():
			GetMetrics().replaysTotal.WithLabelValues("success").Inc()
			r.logger.Info("replayed submission",
				observability.String("id", sub.ID),
				observability.Int("status", resp.StatusCode),
			)
			r.remove(ctx, sub.ID)

		case fetch.IsTransient(err):
			// Still offline or rate limited; keep for the next pass.
			GetMetrics().replaysTotal.WithLabelValues("deferred").Inc()
			r.logger.Debug("submission replay deferred",
				observability.String("id", sub.ID),
				observability.Error(err),
			)

		default:
			// Permanently rejected; retrying again cannot help.
			GetMetrics().replaysTotal.WithLabelValues("rejected").Inc()
			r.logger.Warn("submission permanently rejected",
				observability.String("id", sub.ID),
				observability.Error(err),
			)
			r.remove(ctx, sub.ID)
		}
	}
}

func (r *Replayer) remove(ctx context.Context, id string) {
	if err := r.store.Remove(ctx, id); err != nil {
		r.logger.Error("failed to remove submission",
			observability.String("id", id),
			observability.Error(err),
		)
	}
}
