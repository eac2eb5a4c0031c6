package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hoststack/license-service/internal/models"
	"github.com/hoststack/license-service/internal/repository"
	"github.com/hoststack/license-service/internal/storage"
)

const (
	keyCharset   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	cacheTTL     = 5 * time.Minute
	cacheKeyTmpl = "license:cache:%s"
)

type CreateLicenseInput struct {
	CustomerID   string    `json:"customer_id"`
	PlanName     string    `json:"plan_name"`
	ExpiresAt    time.Time `json:"expires_at"`
	MaxAccounts  int       `json:"max_accounts"`
	MaxDomains   int       `json:"max_domains"`
	MaxDatabases int       `json:"max_databases"`
	MaxEmails    int       `json:"max_emails"`
}

type LicenseService struct {
	repository *repository.LicenseRepository
	redis      *storage.RedisClient
}

func NewLicenseService(repo *repository.LicenseRepository, redis *storage.RedisClient) *LicenseService {
	return &LicenseService{
		repository: repo,
		redis:      redis,
	}
}

// Create provisions a new license with a freshly generated key.
func (s *LicenseService) Create(ctx context.Context, input CreateLicenseInput) (*models.License, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate license key: %w", err)
	}

	license := &models.License{
		LicenseKey:   key,
		CustomerID:   input.CustomerID,
		PlanName:     input.PlanName,
		Status:       models.StatusActive,
		ExpiresAt:    input.ExpiresAt,
		MaxAccounts:  input.MaxAccounts,
		MaxDomains:   input.MaxDomains,
		MaxDatabases: input.MaxDatabases,
		MaxEmails:    input.MaxEmails,
	}

	if err := s.repository.Create(ctx, license); err != nil {
		return nil, fmt.Errorf("failed to create license: %w", err)
	}

	return license, nil
}

// GenerateKey produces a key in the XXXX-XXXX-XXXX-XXXX format from
// crypto/rand.
func GenerateKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	chars := make([]byte, 16)
	for i, b := range raw {
		chars[i] = keyCharset[int(b)%len(keyCharset)]
	}

	groups := []string{
		string(chars[0:4]),
		string(chars[4:8]),
		string(chars[8:12]),
		string(chars[12:16]),
	}

	return strings.Join(groups, "-"), nil
}

// FindByKey is the pipeline's system-of-record lookup, read through a
// short-lived redis cache so hot licenses skip the database.
func (s *LicenseService) FindByKey(ctx context.Context, licenseKey string) (*models.License, error) {
	cacheKey := fmt.Sprintf(cacheKeyTmpl, licenseKey)
	cached, err := s.redis.Get(ctx, cacheKey)

	if err == nil && cached != "" {
		var license models.License
		if err := json.Unmarshal([]byte(cached), &license); err == nil {
			return &license, nil
		}
	}

	// Cache miss - query database
	license, err := s.repository.FindByKey(ctx, licenseKey)
	if err != nil {
		return nil, err
	}

	if license == nil {
		return nil, nil
	}

	licenseJSON, _ := json.Marshal(license)
	s.redis.Set(ctx, cacheKey, licenseJSON, cacheTTL)

	return license, nil
}

func (s *LicenseService) Get(ctx context.Context, id string) (*models.License, error) {
	return s.repository.FindByID(ctx, id)
}

func (s *LicenseService) List(ctx context.Context, limit, offset int) ([]models.License, error) {
	return s.repository.List(ctx, limit, offset)
}

func (s *LicenseService) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	s.invalidateCache(ctx, id)
	return s.repository.Update(ctx, id, updates)
}

func (s *LicenseService) Delete(ctx context.Context, id string) error {
	s.invalidateCache(ctx, id)
	return s.repository.Delete(ctx, id)
}

func (s *LicenseService) invalidateCache(ctx context.Context, id string) {
	license, err := s.repository.FindByID(ctx, id)
	if err != nil || license == nil {
		return
	}

	s.redis.Del(ctx, fmt.Sprintf(cacheKeyTmpl, license.LicenseKey))
}
