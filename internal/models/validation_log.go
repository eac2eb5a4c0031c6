package models

import (
	"time"

	"github.com/google/uuid"
)

// Represents one validation attempt, success or failure. Append-only.
type ValidationLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Timestamp  time.Time  `gorm:"index" json:"timestamp"`
	LicenseKey string     `gorm:"index" json:"license_key"`
	LicenseID  *uuid.UUID `gorm:"index" json:"license_id,omitempty"`
	Feature    string     `gorm:"index" json:"feature"`
	Success    bool       `gorm:"index" json:"success"`
	Message    string     `json:"message"`
	IPAddress  string     `json:"ip_address"`
	UserAgent  string     `json:"user_agent"`
}

func (ValidationLog) TableName() string {
	return "validation_logs"
}
