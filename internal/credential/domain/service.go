package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

// RegisterOAuthRequest stores the initial token pair for a GCP or Azure account.
type RegisterOAuthRequest struct {
	AccountID    uuid.UUID `json:"-"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	TenantID     string    `json:"tenant_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RegisterAWSRoleRequest stores the cross-account role for an AWS account.
type RegisterAWSRoleRequest struct {
	AccountID  uuid.UUID `json:"-"`
	RoleARN    string    `json:"role_arn"`
	ExternalID string    `json:"external_id"`
	ReportName string    `json:"report_name"`
}

// RoleProber validates that a role can actually be assumed before it is stored.
type RoleProber interface {
	Probe(ctx context.Context, roleARN, externalID string) error
}

type Service interface {
	RegisterOAuth(ctx context.Context, req RegisterOAuthRequest) (*OAuthToken, error)
	RegisterAWSRole(ctx context.Context, req RegisterAWSRoleRequest) (*AWSRole, error)
	// EnsureValid returns usable credentials for the account, refreshing
	// an expired OAuth token first. Concurrent calls for the same account
	// share one refresh.
	EnsureValid(ctx context.Context, account accountdomain.CloudAccount) (vendordomain.Credentials, error)
	// ForceRefresh discards the cached access token and refreshes now.
	ForceRefresh(ctx context.Context, account accountdomain.CloudAccount) (vendordomain.Credentials, error)
}
