package store

import (
	"context"
	errs "errors"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aabbtree77/headless/internal/settings"
)

// OptionRepo is the platform's key/value option store. It satisfies
// settings.Store.
type OptionRepo struct{ db *DB }

func NewOptionRepo(db *DB) *OptionRepo { return &OptionRepo{db: db} }

var _ settings.Store = (*OptionRepo)(nil)

func (r *OptionRepo) GetOption(ctx context.Context, name string) ([]byte, error) {
	var opt Option
	err := r.db.gorm.WithContext(ctx).Where("name = ?", name).Take(&opt).Error
	if errs.Is(err, gorm.ErrRecordNotFound) {
		return nil, settings.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get option")
	}
	return []byte(opt.Value), nil
}

func (r *OptionRepo) SetOption(ctx context.Context, name string, value []byte) error {
	opt := Option{Name: name, Value: string(value), UpdatedAt: time.Now().UTC()}
	err := r.db.gorm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&opt).Error
	return errors.Wrap(err, "set option")
}

func (r *OptionRepo) AddOption(ctx context.Context, name string, value []byte) (bool, error) {
	opt := Option{Name: name, Value: string(value), UpdatedAt: time.Now().UTC()}
	res := r.db.gorm.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&opt)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "add option")
	}
	return res.RowsAffected == 1, nil
}
