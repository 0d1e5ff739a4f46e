package valkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ErrMiss reports that a key was absent, as opposed to the backend failing.
var ErrMiss = errors.New("valkey: cache miss")

// localCacheTTL bounds how long a read may be served from the in-process
// client-side cache. Invalidation pushes from the server evict entries
// sooner when another writer touches the key.
const localCacheTTL = 30 * time.Second

// Connect opens a client. The cache and the geo index share one connection;
// the caller owns it and closes it on shutdown.
func Connect(addr string) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return client, nil
}

// Cache implements ports.CacheService on Valkey with server-assisted
// client-side caching on the read path.
type Cache struct {
	client valkey.Client
}

// NewCache wraps an existing client.
func NewCache(client valkey.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the value at key, or ErrMiss when absent. Hot keys are served
// from the client-side cache between invalidation pushes.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := c.client.DoCache(ctx, c.client.B().Get().Key(key).Cache(), localCacheTTL)
	if err := cmd.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return cmd.AsBytes()
}

// Set stores value at key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Do(ctx,
		c.client.B().Set().Key(key).Value(string(value)).Ex(ttl).Build(),
	).Error()
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}
