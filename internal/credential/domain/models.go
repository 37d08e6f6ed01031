// Package domain contains persistence models for vendor credentials.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

var (
	// ErrCredentialNotFound indicates no stored credential for the account.
	ErrCredentialNotFound = errors.New("credential_not_found")
	// ErrCredentialDenied indicates the vendor permanently rejected the
	// credential (revoked refresh token, deleted role).
	ErrCredentialDenied = errors.New("credential_denied")
	// ErrInvalidRole indicates the supplied role ARN is unusable.
	ErrInvalidRole = errors.New("invalid_role")
)

// OAuthToken stores the refreshable token pair for GCP and Azure accounts.
// Exactly one row per cloud account.
type OAuthToken struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID    uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:uq_oauth_tokens_account" json:"account_id"`
	Provider     string       `gorm:"type:text;not null" json:"provider"`
	AccessToken  string       `gorm:"type:text;not null" json:"-"`
	RefreshToken string       `gorm:"type:text;not null" json:"-"`
	TokenType    string       `gorm:"type:text;not null;default:'Bearer'" json:"token_type"`
	Scope        string       `gorm:"type:text;not null;default:''" json:"scope,omitempty"`
	TenantID     string       `gorm:"type:text;not null;default:''" json:"tenant_id,omitempty"`
	ExpiresAt    time.Time    `gorm:"not null" json:"expires_at"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (OAuthToken) TableName() string { return "oauth_tokens" }

// Expired reports whether the access token is unusable at now, with skew.
func (t OAuthToken) Expired(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(t.ExpiresAt)
}

// AWSRole stores the cross-account role assumed for Cost Explorer reads.
type AWSRole struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID  uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:uq_aws_roles_account" json:"account_id"`
	RoleARN    string       `gorm:"type:text;not null" json:"role_arn"`
	ExternalID string       `gorm:"type:text;not null;default:''" json:"-"`
	ReportName string       `gorm:"type:text;not null;default:''" json:"report_name,omitempty"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (AWSRole) TableName() string { return "aws_roles" }
