package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetOrLoadJSON GetOrLoad 的泛型版本，值以 JSON 存 redis。
// load 出错不写缓存（无负缓存），删除后立即能读到 404。
func GetOrLoadJSON[T any](c *Cache, ctx context.Context, key string, ttl time.Duration, load func(context.Context) (*T, error)) (*T, error) {
	raw, err := c.GetOrLoad(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return out, nil
}
