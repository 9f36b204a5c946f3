package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"user-account-api/internal/domain"
	"user-account-api/internal/feature/user"
)

type UserRepo struct{ db *gorm.DB }

var _ domain.UserStore = (*UserRepo)(nil)

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

// Insert 依赖 email 唯一索引做原子判重，不先查后插
func (r *UserRepo) Insert(ctx context.Context, u *domain.User) (*domain.User, error) {
	m := user.FromDomain(u)
	m.ID = 0
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if isDupKey(err) {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return m.ToDomain(), nil
}

func (r *UserRepo) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	var m user.UserModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return m.ToDomain(), nil
}

// Update 条件更新 + 重新读取放在同一事务里；读不到即不存在。
// 不看 RowsAffected：mysql 值未变化时会报 0 行。
func (r *UserRepo) Update(ctx context.Context, id int64, patch domain.UserPatch) (*domain.User, error) {
	var out *domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cols := map[string]any{}
		if patch.Name != nil {
			cols["name"] = *patch.Name
		}
		if patch.PasswordHash != nil {
			cols["password_hash"] = *patch.PasswordHash
		}

		if len(cols) > 0 {
			if err := tx.Model(&user.UserModel{}).Where("id = ?", id).Updates(cols).Error; err != nil {
				return fmt.Errorf("update user %d: %w", id, err)
			}
		}

		var m user.UserModel
		if err := tx.First(&m, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("reload user %d: %w", id, err)
		}
		out = m.ToDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *UserRepo) Remove(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&user.UserModel{})
	if res.Error != nil {
		return fmt.Errorf("remove user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isDupKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// 兜底：sqlite 驱动未翻译时只认唯一约束这一种报文
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
