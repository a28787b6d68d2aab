package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type PostRepo struct{ db *DB }

func NewPostRepo(db *DB) *PostRepo { return &PostRepo{db: db} }

type CreatePostParams struct {
	AuthorID *int64
	Title    string
	Body     string
	Status   string
}

func (r *PostRepo) Create(ctx context.Context, p CreatePostParams) (Post, error) {
	status := p.Status
	if status == "" {
		status = PostDraft
	}
	post := Post{
		ID:        uuid.New(),
		AuthorID:  p.AuthorID,
		Title:     p.Title,
		Body:      p.Body,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.gorm.WithContext(ctx).Create(&post).Error; err != nil {
		return Post{}, errors.Wrap(err, "create post")
	}
	return post, nil
}

func (r *PostRepo) Get(ctx context.Context, id uuid.UUID) (Post, error) {
	var p Post
	err := r.db.gorm.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	if err != nil {
		return Post{}, notFound(err, "get post")
	}
	return p, nil
}

// ListPublished returns published posts, newest first.
func (r *PostRepo) ListPublished(ctx context.Context, limit int) ([]Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var posts []Post
	err := r.db.gorm.WithContext(ctx).
		Where("status = ?", PostPublished).
		Order("created_at DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, errors.Wrap(err, "list posts")
}
