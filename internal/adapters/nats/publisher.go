package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samirrijal/corridor/internal/core/domain"
)

// BroadcastSubject carries live updates for WebSocket relays over core NATS,
// no JetStream durability.
const BroadcastSubject = "corridor.updates.broadcast"

// Stream names. Entries form a work queue: the index-sync consumer removes
// each event once applied. Analysis completions are notifications and age
// out instead.
const (
	StreamEntries  = "CORRIDOR_ENTRIES"
	StreamAnalyses = "CORRIDOR_ANALYSES"
)

const (
	subjectEntryPrefix       = "corridor.entries."
	subjectAnalysisCompleted = "corridor.analysis.completed"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS, enables JetStream, and converges the
// streams to the expected configuration.
func NewPublisher(url string) (*Publisher, error) {
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

	for _, cfg := range []nats.StreamConfig{
		{
			Name:       StreamEntries,
			Subjects:   []string{subjectEntryPrefix + ">"},
			Retention:  nats.WorkQueuePolicy,
			MaxAge:     24 * time.Hour,
			Storage:    nats.FileStorage,
			Duplicates: 2 * time.Minute,
		},
		{
			Name:       StreamAnalyses,
			Subjects:   []string{"corridor.analysis.>"},
			Retention:  nats.InterestPolicy,
			MaxAge:     time.Hour,
			Storage:    nats.FileStorage,
			Duplicates: 2 * time.Minute,
		},
	} {
		if _, err := js.AddStream(&cfg); err != nil {
			// Exists with older settings; update in place.
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishEntryEvent records an entry upsert or removal on the durable
// entries stream and mirrors it to the broadcast subject for live relays.
// The key+timestamp message ID lets JetStream drop the duplicate when a
// retry republishes the same write inside the dedup window.
func (p *Publisher) PublishEntryEvent(ctx context.Context, event *domain.EntryEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msgID := fmt.Sprintf("%s/%d", event.Key, event.Time.UnixNano())
	_, err = p.js.Publish(subjectEntryPrefix+subjectToken(event.Key), data,
		nats.Context(ctx), nats.MsgId(msgID))
	if err != nil {
		return err
	}
	return p.conn.Publish(BroadcastSubject, data)
}

// PublishAnalysisEvent announces a completed corridor analysis.
func (p *Publisher) PublishAnalysisEvent(ctx context.Context, event *domain.AnalysisEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	opts := []nats.PubOpt{nats.Context(ctx)}
	if event.AnalysisID != "" {
		opts = append(opts, nats.MsgId(event.AnalysisID))
	}
	if _, err := p.js.Publish(subjectAnalysisCompleted, data, opts...); err != nil {
		return err
	}
	return p.conn.Publish(BroadcastSubject, data)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn opens a plain NATS connection for subscribe-only consumers such as
// the WebSocket relay.
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// subjectToken makes an entry key usable as a NATS subject token. Keys come
// from arbitrary ingest data and may contain separator characters.
func subjectToken(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '*', '>':
			return '_'
		}
		return r
	}, key)
}
