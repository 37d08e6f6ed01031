package domain

import (
	"context"

	"github.com/google/uuid"

	"github.com/cloudtally/cloudtally/pkg/db/pagination"
)

// CreateRequest registers a new cloud account under an organization.
type CreateRequest struct {
	OrgID             uuid.UUID `json:"org_id"`
	Name              string    `json:"name"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"provider_account_id"`
	Region            string    `json:"region"`
}

// UpdateRequest changes mutable account fields.
type UpdateRequest struct {
	ID     uuid.UUID `json:"-"`
	Name   *string   `json:"name"`
	Region *string   `json:"region"`
	Active *bool     `json:"active"`
}

// ListRequest pages accounts within an organization.
type ListRequest struct {
	OrgID    uuid.UUID
	Provider string
	Page     pagination.Pagination
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CloudAccount, error)
	GetByID(ctx context.Context, id uuid.UUID) (*CloudAccount, error)
	List(ctx context.Context, req ListRequest) ([]*CloudAccount, *pagination.PageInfo, error)
	Update(ctx context.Context, req UpdateRequest) (*CloudAccount, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
