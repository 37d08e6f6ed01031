package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cloudtally/cloudtally/internal/billing/domain"
)

const upsertBatchSize = 500

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) UpsertBatch(ctx context.Context, records []domain.BillingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "account_id"},
				{Name: "usage_start"},
				{Name: "usage_end"},
				{Name: "service_name"},
				{Name: "cost_type"},
				{Name: "resource_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"region", "cost", "currency", "usage_amount", "usage_unit", "metadata", "updated_at",
			}),
		}).
		CreateInBatches(&records, upsertBatchSize).Error
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (r *repository) LatestUsageEnd(ctx context.Context, accountID uuid.UUID) (*time.Time, error) {
	var row struct {
		Latest *time.Time `gorm:"column:latest"`
	}
	err := r.db.WithContext(ctx).
		Model(&domain.BillingRecord{}).
		Select("MAX(usage_end) AS latest").
		Where("account_id = ?", accountID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Latest == nil {
		return nil, nil
	}
	latest := row.Latest.UTC()
	return &latest, nil
}
