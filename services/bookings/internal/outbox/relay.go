// Package outbox moves booking notifications from Postgres to the event bus.
// Delivery is at most once: a row is marked published before it is sent and
// a failed send is recorded on the row, never retried.
package outbox

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/diagnosis/buildhub/pkg/events"
	"github.com/diagnosis/buildhub/pkg/logger"
)

var (
	publishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox messages delivered to the event bus",
		},
		[]string{"subject"},
	)
	failedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_failed_total",
			Help: "Outbox messages whose delivery failed",
		},
		[]string{"subject"},
	)
)

type Store interface {
	Claim(ctx context.Context, limit int) ([]Message, error)
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type Relay struct {
	store     Store
	publisher events.Publisher
	interval  time.Duration
	batchSize int
}

func NewRelay(store Store, publisher events.Publisher, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Relay{store: store, publisher: publisher, interval: interval, batchSize: batchSize}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	logger.Info("Outbox relay started", "interval", r.interval.String(), "batch_size", r.batchSize)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
			// Drain full batches before sleeping again.
			for {
				n, err := r.Flush(ctx)
				if err != nil {
					logger.Error("Outbox flush failed", "error", err)
					break
				}
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

// Flush claims and sends one batch, returning how many rows were claimed.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	msgs, err := r.store.Claim(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	for _, m := range msgs {
		if err := r.publisher.PublishRaw(ctx, m.Subject, m.Payload); err != nil {
			failedTotal.WithLabelValues(m.Subject).Inc()
			logger.Warn("Outbox delivery failed", "outbox_id", m.ID, "subject", m.Subject, "error", err)
			if markErr := r.store.MarkFailed(ctx, m.ID, err.Error()); markErr != nil {
				logger.Error("Failed to record outbox failure", "outbox_id", m.ID, "error", markErr)
			}
			continue
		}
		publishedTotal.WithLabelValues(m.Subject).Inc()
	}
	return len(msgs), nil
}
