package service

import (
	"context"
	"time"

	"github.com/hoststack/license-service/internal/models"
	"github.com/hoststack/license-service/internal/repository"
	"github.com/google/uuid"
)

type AuditService struct {
	repository *repository.ValidationLogRepository
}

func NewAuditService(repo *repository.ValidationLogRepository) *AuditService {
	return &AuditService{repository: repo}
}

// Holds validation-log summary data
type AuditSummary struct {
	TotalValidations int64                    `json:"total_validations"`
	Successes        int64                    `json:"successes"`
	Failures         int64                    `json:"failures"`
	SuccessRate      float64                  `json:"success_rate"`
	TopFeatures      []map[string]interface{} `json:"top_features"`
	TopFailures      []map[string]interface{} `json:"top_failure_reasons"`
}

// Retrieves a summary of validation activity for a time range
func (s *AuditService) GetSummary(ctx context.Context, from, to time.Time) (*AuditSummary, error) {
	summary := &AuditSummary{}

	total, err := s.repository.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.TotalValidations = total

	if total == 0 {
		return summary, nil
	}

	successes, err := s.repository.CountByOutcome(ctx, true, from, to)
	if err != nil {
		return nil, err
	}
	summary.Successes = successes
	summary.Failures = total - successes
	summary.SuccessRate = (float64(successes) / float64(total)) * 100

	topFeatures, err := s.repository.GetTopFeatures(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}
	summary.TopFeatures = topFeatures

	topFailures, err := s.repository.GetTopFailureReasons(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}
	summary.TopFailures = topFailures

	return summary, nil
}

// Retrieves recent validation attempts for one license
func (s *AuditService) GetLicenseActivity(ctx context.Context, licenseID uuid.UUID, from, to time.Time, limit, offset int) ([]models.ValidationLog, error) {
	return s.repository.FindByLicense(ctx, licenseID, from, to, limit, offset)
}

// Retrieves validation logs with pagination
func (s *AuditService) GetLogs(ctx context.Context, from, to time.Time, limit, offset int) ([]models.ValidationLog, error) {
	return s.repository.FindByTimeRange(ctx, from, to, limit, offset)
}

// Deletes logs older than the retention period
func (s *AuditService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutOffDate := time.Now().AddDate(0, 0, -retentionDays)
	return s.repository.DeleteOldLogs(ctx, cutOffDate)
}
