package repository

import (
	"context"
	"time"

	"github.com/hoststack/license-service/internal/models"
	"github.com/hoststack/license-service/internal/storage"
	"github.com/google/uuid"
)

type ValidationLogRepository struct {
	db *storage.Postgres
}

func NewValidationLogRepository(db *storage.Postgres) *ValidationLogRepository {
	return &ValidationLogRepository{db: db}
}

// Inserts a single validation log entry
func (r *ValidationLogRepository) Create(ctx context.Context, log *models.ValidationLog) error {
	return r.db.DB.WithContext(ctx).Create(log).Error
}

// Inserts multiple entries (used by the batching audit worker)
func (r *ValidationLogRepository) CreateBatch(ctx context.Context, logs []*models.ValidationLog) error {
	if len(logs) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&logs).Error
}

// Retrieves entries within a time range
func (r *ValidationLogRepository) FindByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]models.ValidationLog, error) {
	var logs []models.ValidationLog

	err := r.db.DB.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error

	return logs, err
}

// Retrieves entries for a specific license
func (r *ValidationLogRepository) FindByLicense(ctx context.Context, licenseID uuid.UUID, from, to time.Time, limit, offset int) ([]models.ValidationLog, error) {
	var logs []models.ValidationLog
	err := r.db.DB.WithContext(ctx).
		Where("license_id = ? AND timestamp BETWEEN ? AND ?", licenseID, from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error

	return logs, err
}

// Counts entries in a time range
func (r *ValidationLogRepository) CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.ValidationLog{}).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Count(&count).Error

	return count, err
}

// Counts successes or failures in a time range
func (r *ValidationLogRepository) CountByOutcome(ctx context.Context, success bool, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.ValidationLog{}).
		Where("success = ? AND timestamp BETWEEN ? AND ?", success, from, to).
		Count(&count).Error

	return count, err
}

// Returns the most requested features
func (r *ValidationLogRepository) GetTopFeatures(ctx context.Context, from, to time.Time, limit int) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.ValidationLog{}).
		Select("feature, COUNT(*) as count").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Group("feature").
		Order("count DESC").
		Limit(limit).
		Rows()

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var feature string
		var count int64

		if err := rows.Scan(&feature, &count); err != nil {
			return nil, err
		}

		results = append(results, map[string]interface{}{
			"feature": feature,
			"count":   count,
		})
	}

	return results, nil
}

// Returns the most frequent rejection messages
func (r *ValidationLogRepository) GetTopFailureReasons(ctx context.Context, from, to time.Time, limit int) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.ValidationLog{}).
		Select("message, COUNT(*) as count").
		Where("success = ? AND timestamp BETWEEN ? AND ?", false, from, to).
		Group("message").
		Order("count DESC").
		Limit(limit).
		Rows()

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var message string
		var count int64

		if err := rows.Scan(&message, &count); err != nil {
			return nil, err
		}

		results = append(results, map[string]interface{}{
			"message": message,
			"count":   count,
		})
	}

	return results, nil
}

// Deletes entries older than the specified time
func (r *ValidationLogRepository) DeleteOldLogs(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&models.ValidationLog{})

	return result.RowsAffected, result.Error
}
