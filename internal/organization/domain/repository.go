package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, org Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// ListByIDs returns organizations for all ids and fails with
	// ErrOrganizationNotFound when any id is unknown.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]Organization, error)
}
