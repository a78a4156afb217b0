package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// BaseRepository 通用的按主键增删改查
type BaseRepository[T any] struct {
	DB *gorm.DB
}

func (r *BaseRepository[T]) conn(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx)
}

func (r *BaseRepository[T]) FindByID(ctx context.Context, id uint) (*T, error) {
	var entity T
	if err := r.conn(ctx).First(&entity, id).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *BaseRepository[T]) Create(ctx context.Context, entity *T) error {
	return r.conn(ctx).Create(entity).Error
}

func (r *BaseRepository[T]) Save(ctx context.Context, entity *T) error {
	return r.conn(ctx).Save(entity).Error
}

func (r *BaseRepository[T]) Delete(ctx context.Context, id uint) error {
	var entity T
	return r.conn(ctx).Delete(&entity, id).Error
}

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
