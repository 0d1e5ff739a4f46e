package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samirrijal/corridor/internal/core/domain"
)

// redeliverAfter spaces retries of a failed entry event so a struggling
// index backend is not hammered at redelivery speed.
const redeliverAfter = 5 * time.Second

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber opens its own connection, so a slow consumer cannot stall
// publishers elsewhere in the process.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeEntryEvents feeds entry upserts and removals to the handler. The
// durable consumer keeps its place across restarts. Undecodable payloads are
// terminated rather than retried, since they will not parse better on
// redelivery; handler errors schedule a delayed retry, up to three deliveries.
func (s *Subscriber) SubscribeEntryEvents(ctx context.Context, handler func(ctx context.Context, event *domain.EntryEvent) error) error {
	sub, err := s.js.Subscribe(subjectEntryPrefix+">", func(msg *nats.Msg) {
		var event domain.EntryEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("dropping undecodable entry event", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &event); err != nil {
			var delivery uint64
			if meta, metaErr := msg.Metadata(); metaErr == nil {
				delivery = meta.NumDelivered
			}
			slog.Warn("entry event handler failed",
				"key", event.Key, "delivery", delivery, "error", err)
			_ = msg.NakWithDelay(redeliverAfter)
			return
		}
		_ = msg.Ack()
	},
		nats.BindStream(StreamEntries),
		nats.Durable("entry-indexer"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
