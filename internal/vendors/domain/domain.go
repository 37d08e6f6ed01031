// Package domain defines the provider-neutral contract for cloud cost adapters.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	ProviderAWS   = "aws"
	ProviderGCP   = "gcp"
	ProviderAzure = "azure"
)

var (
	// ErrProviderNotFound indicates no adapter is registered for the provider.
	ErrProviderNotFound = errors.New("provider_not_found")
	// ErrInvalidConfig indicates the adapter was given unusable configuration.
	ErrInvalidConfig = errors.New("invalid_adapter_config")

	// ErrAuthDenied indicates the vendor rejected the credentials.
	ErrAuthDenied = errors.New("vendor_auth_denied")
	// ErrRateLimited indicates the vendor throttled the request.
	ErrRateLimited = errors.New("vendor_rate_limited")
	// ErrUnavailable indicates a transient vendor outage or network failure.
	ErrUnavailable = errors.New("vendor_unavailable")
	// ErrMalformed indicates the vendor returned a response we could not parse.
	ErrMalformed = errors.New("vendor_malformed_response")
)

// Window is a half-open [Start, End) usage interval in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// AccountRef identifies the cloud account a fetch runs against.
type AccountRef struct {
	OrgID             uuid.UUID
	AccountID         uuid.UUID
	Provider          string
	ProviderAccountID string
}

// Credentials carries whatever the adapter needs to call the vendor.
// Exactly one of AccessToken or RoleARN is set depending on the provider.
type Credentials struct {
	AccessToken string
	RoleARN     string
	ExternalID  string
}

// UsageGroup is one normalized line of vendor cost data.
type UsageGroup struct {
	ServiceName string
	CostType    string
	Region      string
	ResourceID  string
	Cost        float64
	Currency    string
	UsageAmount float64
	UsageUnit   string
	UsageStart  time.Time
	UsageEnd    time.Time
	Metadata    map[string]interface{}
}

// Empty reports whether the group carries neither cost nor usage.
func (g UsageGroup) Empty() bool {
	return g.Cost <= 0 && g.UsageAmount <= 0
}

// Adapter fetches normalized usage lines from one cloud vendor.
type Adapter interface {
	Provider() string
	FetchUsage(ctx context.Context, ref AccountRef, creds Credentials, window Window) ([]UsageGroup, error)
}
