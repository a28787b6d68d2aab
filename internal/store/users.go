package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type UserRepo struct{ db *DB }

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

type CreateUserParams struct {
	Username     string
	PasswordHash string
	Role         string
}

func (r *UserRepo) Create(ctx context.Context, p CreateUserParams) (User, error) {
	role := p.Role
	if role == "" {
		role = RoleUser
	}
	u := User{
		Username:     p.Username,
		PasswordHash: p.PasswordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.db.gorm.WithContext(ctx).Create(&u).Error; err != nil {
		return User{}, errors.Wrap(err, "create user")
	}
	return u, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := r.db.gorm.WithContext(ctx).Where("username = ?", username).Take(&u).Error
	if err != nil {
		return User{}, notFound(err, "get user")
	}
	return u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := r.db.gorm.WithContext(ctx).Where("id = ?", id).Take(&u).Error
	if err != nil {
		return User{}, notFound(err, "get user")
	}
	return u, nil
}

func (r *UserRepo) List(ctx context.Context) ([]User, error) {
	var users []User
	err := r.db.gorm.WithContext(ctx).Order("id").Find(&users).Error
	return users, errors.Wrap(err, "list users")
}

// UpdateUserPatch changes only the non-empty fields.
type UpdateUserPatch struct {
	PasswordHash string
	Role         string
}

func (r *UserRepo) Update(ctx context.Context, username string, p UpdateUserPatch) (User, error) {
	updates := map[string]any{}
	if p.PasswordHash != "" {
		updates["password_hash"] = p.PasswordHash
	}
	if p.Role != "" {
		updates["role"] = p.Role
	}

	if len(updates) > 0 {
		res := r.db.gorm.WithContext(ctx).Model(&User{}).Where("username = ?", username).Updates(updates)
		if res.Error != nil {
			return User{}, errors.Wrap(res.Error, "update user")
		}
		if res.RowsAffected == 0 {
			return User{}, ErrNotFound
		}
	}
	return r.GetByUsername(ctx, username)
}

func (r *UserRepo) DeleteByUsername(ctx context.Context, username string) error {
	res := r.db.gorm.WithContext(ctx).Where("username = ?", username).Delete(&User{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete user")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsUniqueConstraint reports whether err came from a unique index, for
// either supported database.
func IsUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
