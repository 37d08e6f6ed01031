package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertToken(ctx context.Context, token OAuthToken) error
	GetTokenByAccount(ctx context.Context, accountID uuid.UUID) (*OAuthToken, error)
	UpsertRole(ctx context.Context, role AWSRole) error
	GetRoleByAccount(ctx context.Context, accountID uuid.UUID) (*AWSRole, error)
}
