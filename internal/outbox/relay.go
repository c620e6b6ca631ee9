package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Store is the relay's view of the outbox table.
type Store interface {
	ClaimPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error
	RequeueStuck(ctx context.Context, timeout time.Duration) (int64, error)
}

// Publisher delivers one envelope keyed by its aggregate id.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type Relay struct {
	store     Store
	publisher Publisher
	log       *slog.Logger
	metrics   *Metrics
	now       func() time.Time

	batchSize         int
	processingTimeout time.Duration
	baseBackoff       time.Duration
	maxBackoff        time.Duration
}

type RelayOption func(*Relay)

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithProcessingTimeout(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.processingTimeout = d
		}
	}
}

func WithMetrics(m *Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func WithNow(now func() time.Time) RelayOption {
	return func(r *Relay) { r.now = now }
}

func NewRelay(store Store, publisher Publisher, log *slog.Logger, opts ...RelayOption) *Relay {
	r := &Relay{
		store:             store,
		publisher:         publisher,
		log:               log,
		now:               func() time.Time { return time.Now().UTC() },
		batchSize:         50,
		processingTimeout: 30 * time.Second,
		baseBackoff:       time.Second,
		maxBackoff:        5 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("outbox_poll_failed", slog.String("err", err.Error()))
			}
		}
	}
}

// RunOnce requeues stuck rows, claims a batch and publishes it. It returns
// the number of rows published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	if n, err := r.store.RequeueStuck(ctx, r.processingTimeout); err != nil {
		r.log.Error("outbox_requeue_failed", slog.String("err", err.Error()))
	} else if n > 0 {
		if r.metrics != nil {
			r.metrics.RequeuedTotal.Add(float64(n))
		}
		r.log.Warn("outbox_requeued_stuck", slog.Int64("count", n))
	}

	recs, err := r.store.ClaimPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if r.metrics != nil {
		r.metrics.ClaimedTotal.Add(float64(len(recs)))
		if len(recs) == 0 {
			r.metrics.LagSeconds.Set(0)
		} else {
			r.metrics.LagSeconds.Set(r.now().Sub(recs[0].CreatedAt).Seconds())
		}
	}

	sent := 0
	for _, rec := range recs {
		if err := r.publish(ctx, rec); err != nil {
			if r.metrics != nil {
				r.metrics.FailedTotal.WithLabelValues(rec.EventType).Inc()
			}
			r.log.Error("outbox_publish_failed",
				slog.Int64("id", rec.ID),
				slog.String("event_type", rec.EventType),
				slog.Int("attempts", rec.Attempts),
				slog.String("err", err.Error()),
			)
			next := r.now().Add(r.backoff(rec.Attempts))
			if err := r.store.MarkFailed(ctx, rec.ID, next, err.Error()); err != nil {
				r.log.Error("outbox_mark_failed_failed", slog.Int64("id", rec.ID), slog.String("err", err.Error()))
			}
			continue
		}

		if err := r.store.MarkSent(ctx, rec.ID); err != nil {
			r.log.Error("outbox_mark_sent_failed", slog.Int64("id", rec.ID), slog.String("err", err.Error()))
			continue
		}
		if r.metrics != nil {
			r.metrics.PublishedTotal.WithLabelValues(rec.EventType).Inc()
		}
		sent++
	}
	return sent, nil
}

func (r *Relay) publish(ctx context.Context, rec Record) error {
	value, err := json.Marshal(rec.Envelope())
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, []byte(rec.AggregateID), value)
}

// backoff doubles per attempt, capped at maxBackoff.
func (r *Relay) backoff(attempts int) time.Duration {
	d := r.baseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= r.maxBackoff {
			return r.maxBackoff
		}
	}
	return d
}
