package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cloudtally/cloudtally/pkg/db/pagination"
)

// ListFilter narrows account listings.
type ListFilter struct {
	OrgID    uuid.UUID
	Provider string
	Page     pagination.Pagination
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account CloudAccount) error
	GetByID(ctx context.Context, id uuid.UUID) (*CloudAccount, error)
	List(ctx context.Context, filter ListFilter) ([]*CloudAccount, *pagination.PageInfo, error)
	ListActiveByProvider(ctx context.Context, provider string) ([]CloudAccount, error)
	Update(ctx context.Context, account CloudAccount) error
	Delete(ctx context.Context, id uuid.UUID) error
}
