package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// UpsertBatch writes records, updating mutable fields when the unique
	// line tuple already exists. Returns the number of rows written.
	UpsertBatch(ctx context.Context, records []BillingRecord) (int, error)
	// LatestUsageEnd returns the ingestion watermark for an account, or nil
	// when the account has no records yet.
	LatestUsageEnd(ctx context.Context, accountID uuid.UUID) (*time.Time, error)
}
