package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("user not found")
	ErrConflict = errors.New("email already registered")
)

type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser 对外返回的视图，不含密码
type PublicUser struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u *User) Public() *PublicUser {
	return &PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

// UserPatch nil 字段不更新；email 不可改
type UserPatch struct {
	Name         *string
	PasswordHash *string
}

func (p UserPatch) Empty() bool { return p.Name == nil && p.PasswordHash == nil }

// UserStore 持久化契约：
// Insert 邮箱重复返回 ErrConflict；其余按 id 操作，不存在返回 ErrNotFound。
type UserStore interface {
	Insert(ctx context.Context, u *User) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Update(ctx context.Context, id int64, patch UserPatch) (*User, error)
	Remove(ctx context.Context, id int64) error
}
