// Package publisher relays committed order events from the outbox table to Kafka.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/farmstand/internal/repository"
	"github.com/segmentio/kafka-go"
)

const batchSize = 100

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes outbox rows at least once, keyed by order id so a
// consumer sees one order's events in commit order. Processed rows older
// than the retention window are purged on the slower tick.
type OutboxPoller struct {
	eventTick time.Duration
	purgeTick time.Duration
	retention time.Duration
	repo      repository.OutboxRepository
	writer    messageWriter
	now       func() time.Time
}

func NewOutboxPoller(repo repository.OutboxRepository, topic string, retention time.Duration, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &OutboxPoller{
		eventTick: time.Second,
		purgeTick: time.Hour,
		retention: retention,
		repo:      repo,
		writer:    w,
		now:       time.Now,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	purgeTicker := time.NewTicker(p.purgeTick)
	defer eventTicker.Stop()
	defer purgeTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-purgeTicker.C:
			p.purgeProcessedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch outbox events", "error", err)
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			// later events of the same order must not overtake this one
			slog.ErrorContext(ctx, "failed to publish outbox event", "event_id", event.ID,
				"event_type", event.EventType, "error", err)
			return
		}
		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			slog.ErrorContext(ctx, "failed to mark outbox event as processed", "event_id", event.ID, "error", err)
			return
		}
	}
}

func (p *OutboxPoller) purgeProcessedEvents(ctx context.Context) {
	if p.retention <= 0 {
		return
	}
	n, err := p.repo.PurgeProcessedEvents(ctx, p.now().Add(-p.retention))
	if err != nil {
		slog.ErrorContext(ctx, "failed to purge outbox events", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "purged processed outbox events", "count", n)
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateId),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
