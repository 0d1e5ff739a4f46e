package ports

import (
	"context"
	"time"

	"github.com/samirrijal/corridor/internal/core/domain"
)

// EventPublisher pushes domain events onto the broker. Publishing is
// best-effort from the caller's perspective: services log failures but do
// not fail the triggering write.
type EventPublisher interface {
	PublishEntryEvent(ctx context.Context, event *domain.EntryEvent) error
	PublishAnalysisEvent(ctx context.Context, event *domain.AnalysisEvent) error
}

// EventSubscriber delivers entry events to a handler until ctx is
// canceled. A non-nil handler error leaves the event unacked for redelivery.
type EventSubscriber interface {
	SubscribeEntryEvents(ctx context.Context, handler func(ctx context.Context, event *domain.EntryEvent) error) error
}

// CacheService is the cache-aside store for hot reads. A miss is reported
// as an error distinct from backend failure by the implementation.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
