package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

type License struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	LicenseKey string    `gorm:"uniqueIndex;not null" json:"license_key"`
	CustomerID string    `gorm:"index" json:"customer_id"`
	PlanName   string    `json:"plan_name"`
	Status     string    `gorm:"default:'active';index" json:"status"`
	ExpiresAt  time.Time `json:"expires_at"`

	CurrentAccounts  int `gorm:"default:0" json:"current_accounts"`
	MaxAccounts      int `gorm:"default:0" json:"max_accounts"`
	CurrentDomains   int `gorm:"default:0" json:"current_domains"`
	MaxDomains       int `gorm:"default:0" json:"max_domains"`
	CurrentDatabases int `gorm:"default:0" json:"current_databases"`
	MaxDatabases     int `gorm:"default:0" json:"max_databases"`
	CurrentEmails    int `gorm:"default:0" json:"current_emails"`
	MaxEmails        int `gorm:"default:0" json:"max_emails"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *License) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (License) TableName() string {
	return "licenses"
}

// IsExpired checks the expiry timestamp only; status is checked separately
// so audit messages can distinguish the two.
func (l *License) IsExpired() bool {
	return !l.ExpiresAt.IsZero() && l.ExpiresAt.Before(time.Now())
}
