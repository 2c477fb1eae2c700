package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openfoodhub/foodhub/internal/enterprise/domain"
	"gorm.io/gorm"
)

type repositoryImpl struct{}

func New() domain.Repository {
	return &repositoryImpl{}
}

func (r *repositoryImpl) List(ctx context.Context, db *gorm.DB) ([]domain.Enterprise, error) {
	var enterprises []domain.Enterprise
	if err := db.WithContext(ctx).Order("id").Find(&enterprises).Error; err != nil {
		return nil, err
	}
	return enterprises, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Enterprise, error) {
	var enterprise domain.Enterprise
	err := db.WithContext(ctx).Where("id = ?", id).First(&enterprise).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enterprise, nil
}

func (r *repositoryImpl) VersionsWithin(ctx context.Context, db *gorm.DB, enterpriseID snowflake.ID, from, to time.Time) ([]domain.EnterpriseVersion, error) {
	var versions []domain.EnterpriseVersion
	err := db.WithContext(ctx).
		Where("enterprise_id = ? AND recorded_at >= ? AND recorded_at < ?", enterpriseID, from, to).
		Order("recorded_at ASC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}
