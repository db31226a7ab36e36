package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"gorm.io/gorm"
)

type APIKeyRepository interface {
	GetProjectID(ctx context.Context, key string) (string, error)
}

type GormAPIKeyRepo struct {
	db *gorm.DB
}

func NewGormAPIKeyRepo(db *gorm.DB) *GormAPIKeyRepo {
	return &GormAPIKeyRepo{db: db}
}

func (r *GormAPIKeyRepo) GetProjectID(ctx context.Context, key string) (string, error) {
	var model APIKeyModel
	err := r.db.WithContext(ctx).First(&model, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return model.ProjectID, nil
}
