// Package domain contains persistence models for cloud account management.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAccountNotFound indicates the cloud account does not exist.
	ErrAccountNotFound = errors.New("account_not_found")
	// ErrDuplicateAccount indicates an account with the same identity exists.
	ErrDuplicateAccount = errors.New("duplicate_account")
	// ErrUnsupportedProvider indicates an unknown cloud provider value.
	ErrUnsupportedProvider = errors.New("unsupported_provider")
	// ErrAccountInactive indicates the account has been deactivated.
	ErrAccountInactive = errors.New("account_inactive")
)

// CloudAccount links a tenant to one vendor billing scope.
type CloudAccount struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID             uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_cloud_accounts_identity,priority:1" json:"org_id"`
	Name              string    `gorm:"type:text;not null;uniqueIndex:uq_cloud_accounts_identity,priority:2" json:"name"`
	Provider          string    `gorm:"type:text;not null;index" json:"provider"`
	ProviderAccountID string    `gorm:"type:text;not null;uniqueIndex:uq_cloud_accounts_identity,priority:3" json:"provider_account_id"`
	Region            string    `gorm:"type:text;not null;default:''" json:"region,omitempty"`
	Active            bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (CloudAccount) TableName() string { return "cloud_accounts" }

// NormalizeProvider lower-cases and validates a provider value.
func NormalizeProvider(provider string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "aws":
		return "aws", nil
	case "gcp", "google":
		return "gcp", nil
	case "azure":
		return "azure", nil
	default:
		return "", ErrUnsupportedProvider
	}
}
