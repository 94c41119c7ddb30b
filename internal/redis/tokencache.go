package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/convobench/inbenta-relay-go/internal/inbenta"
)

// TokenCache shares platform tokens across processes so that restarts
// and parallel sync runs reuse the same credential instead of
// re-authenticating. Entries expire together with the token they hold.
type TokenCache struct {
	client *Client
}

func NewTokenCache(client *Client) *TokenCache {
	return &TokenCache{client: client}
}

func (c *TokenCache) Get(ctx context.Context, key string) (*inbenta.Token, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var token inbenta.Token
	if err := json.Unmarshal(payload, &token); err != nil {
		// A corrupt entry is treated as a miss so the caller
		// re-authenticates and overwrites it.
		return nil, nil
	}
	return &token, nil
}

func (c *TokenCache) Put(ctx context.Context, key string, token *inbenta.Token, ttl time.Duration) error {
	if token == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
