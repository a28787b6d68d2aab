package store

import (
	"time"

	"github.com/google/uuid"
)

type Option struct {
	Name      string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID           int64 `gorm:"primaryKey"`
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

type Session struct {
	ID           int64 `gorm:"primaryKey"`
	UserID       int64
	SessionToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

const (
	PostDraft     = "draft"
	PostPublished = "publish"
)

type Post struct {
	ID        uuid.UUID `gorm:"primaryKey"`
	AuthorID  *int64
	Title     string
	Body      string
	Status    string
	CreatedAt time.Time
}
