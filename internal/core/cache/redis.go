package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	defaultLoadTimeout = 5 * time.Second
	genTTL             = time.Hour // 需远大于一次回源耗时
)

type Cache struct {
	RDB    *redis.Client
	Prefix string
	// LoadTimeout 合并回源的超时；回源不跟随任何单个调用方的 ctx
	LoadTimeout time.Duration
	sf          singleflight.Group
}

func New(addr, pass string, db int) *Cache {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}))
}

func NewWithClient(rdb *redis.Client) *Cache {
	return &Cache{RDB: rdb, LoadTimeout: defaultLoadTimeout}
}

func (c *Cache) key(k string) string { return c.Prefix + k }

// genKey 每次 Invalidate 自增；回源前后版本不一致就不回写
func genKey(full string) string { return full + ":gen" }

// Ping 启动时检查连通性
func (c *Cache) Ping(ctx context.Context) error { return c.RDB.Ping(ctx).Err() }

func (c *Cache) Close() error { return c.RDB.Close() }

// GetOrLoad 先读缓存，未命中用 singleflight 合并回源；load 出错不写缓存。
// 回源期间发生 Invalidate 时结果只返回给本次调用方，不写入 redis。
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	k := c.key(key)
	b, err := c.RDB.Get(ctx, k).Bytes()
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	ch := c.sf.DoChan(k, func() (any, error) {
		timeout := c.LoadTimeout
		if timeout <= 0 {
			timeout = defaultLoadTimeout
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		// 版本必须在回源之前读
		gen, gerr := c.RDB.Get(lctx, genKey(k)).Int64()
		cacheable := gerr == nil || errors.Is(gerr, redis.Nil)

		b, e := load(lctx)
		if e != nil {
			return nil, e
		}
		if cacheable {
			_ = c.setIfGen(lctx, k, gen, b, ttl)
		}
		return b, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var errStale = errors.New("cache: value invalidated during load")

// setIfGen WATCH 版本 key，版本未变才写入
func (c *Cache) setIfGen(ctx context.Context, k string, gen int64, b []byte, ttl time.Duration) error {
	gk := genKey(k)
	return c.RDB.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, b, ttl)
			return nil
		})
		return err
	}, gk)
}

// Invalidate 失效若干 key：版本自增 + 删除值，并让后到的读不再并入进行中的回源
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := c.RDB.TxPipeline()
	for _, key := range keys {
		k := c.key(key)
		c.sf.Forget(k)
		pipe.Incr(ctx, genKey(k))
		pipe.Expire(ctx, genKey(k), genTTL)
		pipe.Del(ctx, k)
	}
	_, err := pipe.Exec(ctx)
	return err
}
