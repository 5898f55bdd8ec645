package categorizer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/vmihailenco/msgpack/v5"
)

// SharedCache stores categorizations in a JetStream KV bucket, msgpack
// encoded. Expiry is the bucket's TTL.
type SharedCache struct {
	kv     jetstream.KeyValue
	logger *slog.Logger
}

func NewSharedCache(kv jetstream.KeyValue, logger *slog.Logger) *SharedCache {
	return &SharedCache{kv: kv, logger: logger}
}

// Get treats every error as a miss.
func (c *SharedCache) Get(ctx context.Context, key string) (Categorization, bool) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, jetstream.ErrKeyNotFound) && !errors.Is(err, jetstream.ErrKeyDeleted) {
			c.logger.Warn("shared cache get failed", "key", key, "error", err)
		}
		return Categorization{}, false
	}
	var cat Categorization
	if err := msgpack.Unmarshal(entry.Value(), &cat); err != nil {
		c.logger.Warn("shared cache entry undecodable", "key", key, "error", err)
		return Categorization{}, false
	}
	return cat, true
}

func (c *SharedCache) Put(ctx context.Context, key string, cat Categorization) {
	data, err := msgpack.Marshal(cat)
	if err != nil {
		c.logger.Warn("shared cache encode failed", "key", key, "error", err)
		return
	}
	if _, err := c.kv.Put(ctx, key, data); err != nil {
		c.logger.Warn("shared cache put failed", "key", key, "error", err)
	}
}
