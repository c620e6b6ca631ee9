package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStore struct {
	pending  []Record
	sent     []int64
	failed   map[int64]time.Time
	requeued int64
}

func (f *fakeStore) ClaimPending(_ context.Context, limit int) ([]Record, error) {
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	out := f.pending[:limit]
	f.pending = f.pending[limit:]
	return out, nil
}

func (f *fakeStore) MarkSent(_ context.Context, id int64) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id int64, next time.Time, _ string) error {
	if f.failed == nil {
		f.failed = make(map[int64]time.Time)
	}
	f.failed[id] = next
	return nil
}

func (f *fakeStore) RequeueStuck(context.Context, time.Duration) (int64, error) {
	return f.requeued, nil
}

type fakePublisher struct {
	failKeys map[string]bool
	got      []Envelope
	keys     []string
}

func (p *fakePublisher) Publish(_ context.Context, key, value []byte) error {
	if p.failKeys[string(key)] {
		return errors.New("broker unavailable")
	}
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return err
	}
	p.got = append(p.got, env)
	p.keys = append(p.keys, string(key))
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRelay_RunOnce(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("publishes and marks sent", func(t *testing.T) {
		store := &fakeStore{pending: []Record{
			{ID: 1, EventID: "e1", Aggregate: "ticket", AggregateID: "t1", EventType: EventTicketPurchased, Payload: json.RawMessage(`{}`), CreatedAt: now.Add(-2 * time.Second), Attempts: 1},
			{ID: 2, EventID: "e2", Aggregate: "ticket", AggregateID: "t2", EventType: EventTicketValidated, Payload: json.RawMessage(`{"result":"VALID"}`), CreatedAt: now, Attempts: 1},
		}}
		pub := &fakePublisher{}
		reg := prometheus.NewRegistry()
		m := NewMetrics(reg)
		relay := NewRelay(store, pub, testLogger(), WithMetrics(m), WithNow(func() time.Time { return now }))

		n, err := relay.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("run once: %v", err)
		}
		if n != 2 {
			t.Fatalf("expected 2 published, got %d", n)
		}
		if len(store.sent) != 2 {
			t.Fatalf("expected 2 rows marked sent, got %d", len(store.sent))
		}
		if pub.keys[0] != "t1" || pub.got[1].EventType != EventTicketValidated {
			t.Fatalf("unexpected publish order: %+v", pub.got)
		}
		if got := testutil.ToFloat64(m.LagSeconds); got != 2 {
			t.Fatalf("expected lag 2s, got %v", got)
		}
		if got := testutil.ToFloat64(m.PublishedTotal.WithLabelValues(EventTicketPurchased)); got != 1 {
			t.Fatalf("expected 1 purchased published, got %v", got)
		}
	})

	t.Run("failed publish is rescheduled with backoff", func(t *testing.T) {
		store := &fakeStore{pending: []Record{
			{ID: 7, AggregateID: "bad", EventType: EventTicketCancelled, CreatedAt: now, Attempts: 3},
		}}
		pub := &fakePublisher{failKeys: map[string]bool{"bad": true}}
		relay := NewRelay(store, pub, testLogger(), WithNow(func() time.Time { return now }))

		n, err := relay.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("run once: %v", err)
		}
		if n != 0 {
			t.Fatalf("expected nothing published, got %d", n)
		}
		next, ok := store.failed[7]
		if !ok {
			t.Fatalf("expected row 7 marked failed")
		}
		if want := now.Add(4 * time.Second); !next.Equal(want) {
			t.Fatalf("expected retry at %v, got %v", want, next)
		}
	})
}

func TestRelay_BackoffCapped(t *testing.T) {
	relay := NewRelay(&fakeStore{}, &fakePublisher{}, testLogger())
	if got := relay.backoff(1); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
	if got := relay.backoff(50); got != 5*time.Minute {
		t.Fatalf("expected cap 5m, got %v", got)
	}
}
