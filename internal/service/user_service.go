package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"user-account-api/internal/domain"
	"user-account-api/internal/events"
	"user-account-api/pkg/utils"
)

// 鉴权阶段的结果；NotFound / Conflict 直接沿用 domain 的哨兵错误
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrIdentityMismatch  = errors.New("identity mismatch")

	// ErrPasswordTooLong 密码超出 bcrypt 的 72 字节上限，属于入参问题
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)

type CreateInput struct {
	Name     string
	Email    string
	Password string
}

// UpdateInput nil 表示不修改
type UpdateInput struct {
	Name     *string
	Password *string
}

type UserService struct {
	store  domain.UserStore
	tokens domain.TokenDecoder
	events events.Publisher
	log    *zap.Logger

	hashPassword func(string) (string, error)
}

func NewUserService(store domain.UserStore, tokens domain.TokenDecoder, pub events.Publisher, l *zap.Logger) *UserService {
	if pub == nil {
		pub = events.Nop{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &UserService{
		store:        store,
		tokens:       tokens,
		events:       pub,
		log:          l,
		hashPassword: utils.HashPassword,
	}
}

func (s *UserService) Create(ctx context.Context, in CreateInput) (*domain.PublicUser, error) {
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	u, err := s.store.Insert(ctx, &domain.User{Name: in.Name, Email: in.Email, PasswordHash: hash})
	if err != nil {
		return nil, err
	}
	s.publish(events.UserEvent{EventType: events.UserCreated, UserID: u.ID, Email: u.Email})
	return u.Public(), nil
}

func (s *UserService) Read(ctx context.Context, requestedID int64, cred domain.Credential) (*domain.PublicUser, error) {
	if err := s.authorize(cred, requestedID); err != nil {
		return nil, err
	}
	u, err := s.store.FindByID(ctx, requestedID)
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

func (s *UserService) Update(ctx context.Context, requestedID int64, cred domain.Credential, in UpdateInput) (*domain.PublicUser, error) {
	if err := s.authorize(cred, requestedID); err != nil {
		return nil, err
	}
	patch := domain.UserPatch{Name: in.Name}
	if in.Password != nil {
		hash, err := s.hash(*in.Password)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &hash
	}
	u, err := s.store.Update(ctx, requestedID, patch)
	if err != nil {
		return nil, err
	}
	s.publish(events.UserEvent{EventType: events.UserUpdated, UserID: u.ID, Email: u.Email})
	return u.Public(), nil
}

func (s *UserService) Delete(ctx context.Context, requestedID int64, cred domain.Credential) error {
	if err := s.authorize(cred, requestedID); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, requestedID); err != nil {
		return err
	}
	s.publish(events.UserEvent{EventType: events.UserDeleted, UserID: requestedID})
	return nil
}

// authorize 三个操作共用同一道闸，store 只在 Allowed 之后才会被调用
func (s *UserService) authorize(cred domain.Credential, requestedID int64) error {
	d := domain.Decide(cred, s.tokens, requestedID)
	switch d.Outcome {
	case domain.Allowed:
		return nil
	case domain.MissingCredential:
		return ErrMissingCredential
	case domain.InvalidCredential:
		return ErrInvalidCredential
	default:
		return ErrIdentityMismatch
	}
}

func (s *UserService) hash(pw string) (string, error) {
	h, err := s.hashPassword(pw)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return h, nil
}

func (s *UserService) publish(ev events.UserEvent) {
	if err := s.events.PublishUser(ev); err != nil {
		s.log.Warn("publish user event failed",
			zap.String("event", ev.EventType),
			zap.Int64("uid", ev.UserID),
			zap.Error(err),
		)
	}
}
