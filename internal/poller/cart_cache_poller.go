// Package poller consumes order events and evicts the cached cart of every
// confirmed order, catching evictions the request path could not make.
package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fjod/farmstand/internal/cache"
	"github.com/fjod/farmstand/internal/domain"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type CartCachePoller struct {
	reader  messageReader
	cache   cache.CartCache
	backoff time.Duration
}

func NewCartCachePoller(c cache.CartCache, topic, groupID string, brokers ...string) *CartCachePoller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &CartCachePoller{reader: reader, cache: c, backoff: time.Second}
}

func (p *CartCachePoller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("error reading order event", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.backoff):
			}
			continue
		}
		p.handle(ctx, m)
	}
}

func (p *CartCachePoller) Close() {
	if err := p.reader.Close(); err != nil {
		slog.Error("error closing reader", "error", err)
	}
}

func (p *CartCachePoller) handle(ctx context.Context, m kafka.Message) {
	if eventType(m) != domain.EventOrderConfirmed {
		return
	}

	var ev domain.OrderEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		slog.Error("error parsing order event", "key", string(m.Key), "error", err)
		return
	}
	if ev.SessionID == "" {
		slog.Warn("confirmed order event without session", "order_id", ev.OrderID)
		return
	}

	if err := p.cache.Delete(ctx, ev.SessionID); err != nil {
		slog.Error("failed to evict cart cache", "order_id", ev.OrderID, "error", err)
		return
	}
	slog.Debug("cart cache evicted", "order_id", ev.OrderID)
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
