package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cloudtally/cloudtally/internal/credential/domain"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) UpsertToken(ctx context.Context, token domain.OAuthToken) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"access_token", "refresh_token", "token_type", "scope", "tenant_id", "expires_at", "updated_at",
			}),
		}).
		Create(&token).Error
}

func (r *repository) GetTokenByAccount(ctx context.Context, accountID uuid.UUID) (*domain.OAuthToken, error) {
	var token domain.OAuthToken
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, err
	}
	return &token, nil
}

func (r *repository) UpsertRole(ctx context.Context, role domain.AWSRole) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"role_arn", "external_id", "report_name", "updated_at",
			}),
		}).
		Create(&role).Error
}

func (r *repository) GetRoleByAccount(ctx context.Context, accountID uuid.UUID) (*domain.AWSRole, error) {
	var role domain.AWSRole
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, err
	}
	return &role, nil
}
