package jobs

import (
	"context"
	"sync"
	"time"

	"deposit-governance/internal/events"
	"deposit-governance/internal/metrics"
	"deposit-governance/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Outbox is the part of the repository the relay reads from
type Outbox interface {
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*models.GovernanceEvent, error)
	MarkEventsPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// EventRelay publishes committed outbox events in sequence order
type EventRelay struct {
	outbox    Outbox
	publisher events.Publisher
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	stopChan  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// NewEventRelay creates a new outbox relay job. metrics may be nil.
func NewEventRelay(outbox Outbox, publisher events.Publisher, m *metrics.Metrics, interval time.Duration, batchSize int) *EventRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &EventRelay{
		outbox:    outbox,
		publisher: publisher,
		metrics:   m,
		interval:  interval,
		batchSize: batchSize,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins the relay loop
func (r *EventRelay) Start() {
	defer close(r.done)
	log.Info().Dur("interval", r.interval).Msg("[EventRelay] Starting outbox relay job")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.RelayOnce(context.Background()); err != nil {
				log.Error().Err(err).Msg("[EventRelay] relay pass failed")
			}
		case <-r.stopChan:
			log.Info().Msg("[EventRelay] Stopping outbox relay job")
			return
		}
	}
}

// Stop stops the relay loop and waits for an in-flight pass to finish.
// Start must have been called. Calling Stop again is a no-op.
func (r *EventRelay) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	<-r.done
}

// RelayOnce publishes one batch. Publishing stops at the first failure so
// subscribers never observe a gap in the sequence.
func (r *EventRelay) RelayOnce(ctx context.Context) (int, error) {
	batch, err := r.outbox.GetUnpublishedEvents(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		r.record(0, 0, 0)
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(batch))
	failed := 0
	for _, event := range batch {
		if err := r.publisher.Publish(ctx, event); err != nil {
			failed++
			log.Warn().
				Err(err).
				Int64("sequence", event.Sequence).
				Str("type", event.Type).
				Msg("[EventRelay] publish failed, retrying next pass")
			break
		}
		published = append(published, event.ID)
	}

	if err := r.outbox.MarkEventsPublished(ctx, published, time.Now().UTC()); err != nil {
		// The batch will be published again; subscribers dedupe by sequence
		r.record(0, failed, len(batch))
		return 0, err
	}

	r.record(len(published), failed, len(batch)-len(published))
	if len(published) > 0 {
		log.Debug().Int("count", len(published)).Msg("[EventRelay] events relayed")
	}
	return len(published), nil
}

func (r *EventRelay) record(published, failed, pending int) {
	if r.metrics != nil {
		r.metrics.RecordRelay(published, failed, pending)
	}
}
