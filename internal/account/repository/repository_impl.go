package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cloudtally/cloudtally/internal/account/domain"
	"github.com/cloudtally/cloudtally/pkg/db/pagination"
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

func (r *repository) Create(ctx context.Context, account domain.CloudAccount) error {
	return r.db.WithContext(ctx).Create(&account).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CloudAccount, error) {
	var account domain.CloudAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.CloudAccount, *pagination.PageInfo, error) {
	limit := filter.Page.Limit()

	query := r.db.WithContext(ctx).Where("org_id = ?", filter.OrgID)
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if token := filter.Page.PageToken; token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, nil, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, err
		}
		query = query.Where("(created_at, id) > (?, ?)", createdAt, cursor.ID)
	}

	var accounts []*domain.CloudAccount
	err := query.Order("created_at ASC, id ASC").Limit(limit + 1).Find(&accounts).Error
	if err != nil {
		return nil, nil, err
	}

	pageInfo, accounts := pagination.BuildCursorPageInfo(accounts, limit, func(a *domain.CloudAccount) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        a.ID.String(),
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})
	return accounts, pageInfo, nil
}

func (r *repository) ListActiveByProvider(ctx context.Context, provider string) ([]domain.CloudAccount, error) {
	var accounts []domain.CloudAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND active = ?", provider, true).
		Order("created_at ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repository) Update(ctx context.Context, account domain.CloudAccount) error {
	result := r.db.WithContext(ctx).
		Model(&domain.CloudAccount{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"name":       account.Name,
			"region":     account.Region,
			"active":     account.Active,
			"updated_at": account.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.CloudAccount{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
