package repo

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"user-account-api/internal/core/cache"
	"user-account-api/internal/domain"
)

// CachedUserStore 在 FindByID 前面加一层 redis 读穿缓存；写操作成功后失效
type CachedUserStore struct {
	next  domain.UserStore
	cache *cache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

var _ domain.UserStore = (*CachedUserStore)(nil)

func NewCachedUserStore(next domain.UserStore, c *cache.Cache, ttl time.Duration, l *zap.Logger) *CachedUserStore {
	if l == nil {
		l = zap.NewNop()
	}
	return &CachedUserStore{next: next, cache: c, ttl: ttl, log: l}
}

func userKey(id int64) string { return "user:" + strconv.FormatInt(id, 10) }

func (s *CachedUserStore) Insert(ctx context.Context, u *domain.User) (*domain.User, error) {
	return s.next.Insert(ctx, u)
}

func (s *CachedUserStore) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return cache.GetOrLoadJSON(s.cache, ctx, userKey(id), s.ttl, func(ctx context.Context) (*domain.User, error) {
		return s.next.FindByID(ctx, id)
	})
}

func (s *CachedUserStore) Update(ctx context.Context, id int64, patch domain.UserPatch) (*domain.User, error) {
	u, err := s.next.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return u, nil
}

func (s *CachedUserStore) Remove(ctx context.Context, id int64) error {
	if err := s.next.Remove(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CachedUserStore) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), userKey(id)); err != nil {
		s.log.Warn("cache invalidate failed", zap.Int64("uid", id), zap.Error(err))
	}
}
