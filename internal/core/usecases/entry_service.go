package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samirrijal/corridor/internal/core/domain"
	"github.com/samirrijal/corridor/internal/core/ports"
	"github.com/samirrijal/corridor/internal/pkg/metrics"
)

var (
	ErrKeyRequired     = errors.New("entry key is required")
	ErrInvalidLocation = errors.New("location out of range")
)

const (
	entryCacheTTL = 5 * time.Minute
	listCacheTTL  = 30 * time.Second
	statsCacheTTL = time.Minute
)

// EntryService manages the point entries the corridor index is built from.
// The repository is the canonical store; index backends follow it through
// the entry events this service publishes.
type EntryService struct {
	repo      ports.EntryRepository
	cache     ports.CacheService
	publisher ports.EventPublisher
}

func NewEntryService(repo ports.EntryRepository, cache ports.CacheService, publisher ports.EventPublisher) *EntryService {
	return &EntryService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
	}
}

func (s *EntryService) Upsert(ctx context.Context, entry *domain.Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	entry.UpdatedAt = time.Now().UTC()

	if err := s.repo.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("upserting entry %s: %w", entry.Key, err)
	}
	s.invalidate(ctx, entry.Key)

	if s.publisher != nil {
		loc := entry.Location
		// Index sync is eventually consistent; a failed publish is retried
		// by the next full reindex, not by failing the write.
		_ = s.publisher.PublishEntryEvent(ctx, &domain.EntryEvent{
			Key:      entry.Key,
			Location: &loc,
			Time:     entry.UpdatedAt,
		})
	}
	return nil
}

// UpsertBatch stores a batch of entries and publishes one event per entry.
// Used by the ingestor, where per-entry round trips would dominate.
func (s *EntryService) UpsertBatch(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range entries {
		if err := validateEntry(&entries[i]); err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, entries[i].Key, err)
		}
		entries[i].UpdatedAt = now
	}

	if err := s.repo.UpsertBatch(ctx, entries); err != nil {
		return fmt.Errorf("upserting %d entries: %w", len(entries), err)
	}
	for i := range entries {
		s.invalidate(ctx, entries[i].Key)
		if s.publisher != nil {
			loc := entries[i].Location
			_ = s.publisher.PublishEntryEvent(ctx, &domain.EntryEvent{
				Key:      entries[i].Key,
				Location: &loc,
				Time:     now,
			})
		}
	}
	return nil
}

func (s *EntryService) GetByKey(ctx context.Context, key string) (*domain.Entry, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	cacheKey := fmt.Sprintf("entries:key:%s", key)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			var entry domain.Entry
			if err := json.Unmarshal(cached, &entry); err == nil {
				metrics.CacheHits.WithLabelValues("entry").Inc()
				return &entry, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("entry").Inc()
	}

	entry, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetching entry %s: %w", key, err)
	}
	if entry == nil {
		return nil, nil
	}

	if s.cache != nil {
		if data, err := json.Marshal(entry); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, entryCacheTTL)
		}
	}
	return entry, nil
}

func (s *EntryService) List(ctx context.Context, limit, offset int) ([]domain.Entry, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	cacheKey := fmt.Sprintf("entries:list:%d:%d", limit, offset)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			var page entryPage
			if err := json.Unmarshal(cached, &page); err == nil {
				metrics.CacheHits.WithLabelValues("entry_list").Inc()
				return page.Entries, page.Total, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("entry_list").Inc()
	}

	entries, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing entries: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(entryPage{Entries: entries, Total: total}); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, listCacheTTL)
		}
	}
	return entries, total, nil
}

func (s *EntryService) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting entry %s: %w", key, err)
	}
	s.invalidate(ctx, key)

	if s.publisher != nil {
		_ = s.publisher.PublishEntryEvent(ctx, &domain.EntryEvent{
			Key:     key,
			Removed: true,
			Time:    time.Now().UTC(),
		})
	}
	return nil
}

func (s *EntryService) Stats(ctx context.Context) (*domain.EntryStats, error) {
	cacheKey := "entries:stats"
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			var stats domain.EntryStats
			if err := json.Unmarshal(cached, &stats); err == nil {
				metrics.CacheHits.WithLabelValues("entry_stats").Inc()
				return &stats, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("entry_stats").Inc()
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching entry stats: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, statsCacheTTL)
		}
	}
	return stats, nil
}

func (s *EntryService) invalidate(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, fmt.Sprintf("entries:key:%s", key))
	_ = s.cache.Delete(ctx, "entries:stats")
}

type entryPage struct {
	Entries []domain.Entry `json:"entries"`
	Total   int            `json:"total"`
}

func validateEntry(entry *domain.Entry) error {
	if entry == nil || entry.Key == "" {
		return ErrKeyRequired
	}
	loc := entry.Location
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
		return fmt.Errorf("%w: lat=%g lon=%g", ErrInvalidLocation, loc.Lat, loc.Lon)
	}
	return nil
}
