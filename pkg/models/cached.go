package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Protocol-Lattice/go-toolbridge/pkg/cache"
)

// Defaults used when the wrapper is requested through the provider factory's
// "cached:" prefix.
const (
	defaultCacheCapacity = 128
	defaultCacheTTL      = 5 * time.Minute
)

// CachedChat wraps a provider with an LRU response cache keyed on the full
// request. Identical requests within the TTL are served without a round trip.
type CachedChat struct {
	Inner ChatModel
	Cache *cache.LRUCache
}

func NewCachedChat(inner ChatModel, capacity int, ttl time.Duration) *CachedChat {
	return &CachedChat{
		Inner: inner,
		Cache: cache.NewLRUCache(capacity, ttl),
	}
}

func (c *CachedChat) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	key, ok := requestKey(req)
	if !ok {
		return c.Inner.Chat(ctx, req)
	}

	if cached, hit := c.Cache.Get(key); hit {
		if resp, ok := cached.(ChatResponse); ok {
			return resp, nil
		}
	}

	resp, err := c.Inner.Chat(ctx, req)
	if err != nil {
		return ChatResponse{}, err
	}
	c.Cache.Set(key, resp)
	return resp, nil
}

func requestKey(req ChatRequest) (string, bool) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", false
	}
	return cache.HashKey(string(payload)), true
}

var _ ChatModel = (*CachedChat)(nil)
