package repository

import (
	"context"

	"github.com/hoststack/license-service/internal/models"
	"github.com/hoststack/license-service/internal/storage"
	"gorm.io/gorm"
)

type LicenseRepository struct {
	db *storage.Postgres
}

func NewLicenseRepository(db *storage.Postgres) *LicenseRepository {
	return &LicenseRepository{db: db}
}

func (r *LicenseRepository) Create(ctx context.Context, license *models.License) error {
	return r.db.DB.WithContext(ctx).Create(license).Error
}

func (r *LicenseRepository) FindByKey(ctx context.Context, licenseKey string) (*models.License, error) {
	var license models.License
	err := r.db.DB.WithContext(ctx).
		Where("license_key = ?", licenseKey).
		First(&license).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &license, err
}

func (r *LicenseRepository) FindByID(ctx context.Context, id string) (*models.License, error) {
	var license models.License
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&license).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &license, err
}

func (r *LicenseRepository) List(ctx context.Context, limit, offset int) ([]models.License, error) {
	var licenses []models.License
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&licenses).Error

	return licenses, err
}

func (r *LicenseRepository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.License{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *LicenseRepository) Delete(ctx context.Context, id string) error {
	return r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.License{}).Error
}

func (r *LicenseRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.License{}).
		Where("status = ?", status).
		Count(&count).Error

	return count, err
}
