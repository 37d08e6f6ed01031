package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cloudtally/cloudtally/internal/billing/domain"
	"github.com/cloudtally/cloudtally/pkg/db"
)

func newTestRepository(t *testing.T) (domain.Repository, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&domain.BillingRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	return NewRepository(dbConn), dbConn, node
}

func record(node *snowflake.Node, accountID uuid.UUID, day time.Time, service string, cost float64) domain.BillingRecord {
	return domain.BillingRecord{
		ID:          node.Generate(),
		AccountID:   accountID,
		UsageStart:  day,
		UsageEnd:    day.Add(24 * time.Hour),
		ServiceName: service,
		CostType:    "UnblendedCost",
		Cost:        cost,
		Currency:    "USD",
		UsageAmount: 1,
		UsageUnit:   "Hrs",
	}
}

func TestUpsertBatchIsIdempotent(t *testing.T) {
	repo, dbConn, node := newTestRepository(t)
	ctx := context.Background()
	accountID := uuid.New()
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	first := record(node, accountID, day, "AmazonEC2", 10.5)
	if _, err := repo.UpsertBatch(ctx, []domain.BillingRecord{first}); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	// Same line tuple, restated cost: must update in place.
	second := record(node, accountID, day, "AmazonEC2", 12.25)
	if _, err := repo.UpsertBatch(ctx, []domain.BillingRecord{second}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	var count int64
	if err := dbConn.Model(&domain.BillingRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after re-ingestion, got %d", count)
	}

	var stored domain.BillingRecord
	if err := dbConn.Where("account_id = ?", accountID).First(&stored).Error; err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if stored.Cost != 12.25 {
		t.Fatalf("expected restated cost 12.25, got %v", stored.Cost)
	}
}

func TestUpsertBatchDistinctResources(t *testing.T) {
	repo, dbConn, node := newTestRepository(t)
	ctx := context.Background()
	accountID := uuid.New()
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	a := record(node, accountID, day, "AmazonEC2", 1)
	a.ResourceID = "i-0001"
	b := record(node, accountID, day, "AmazonEC2", 2)
	b.ResourceID = "i-0002"

	n, err := repo.UpsertBatch(ctx, []domain.BillingRecord{a, b})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows written, got %d", n)
	}

	var count int64
	if err := dbConn.Model(&domain.BillingRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}
}

func TestLatestUsageEnd(t *testing.T) {
	repo, _, node := newTestRepository(t)
	ctx := context.Background()
	accountID := uuid.New()

	latest, err := repo.LatestUsageEnd(ctx, accountID)
	if err != nil {
		t.Fatalf("watermark failed: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil watermark for empty account, got %v", latest)
	}

	early := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	if _, err := repo.UpsertBatch(ctx, []domain.BillingRecord{
		record(node, accountID, early, "AmazonS3", 1),
		record(node, accountID, late, "AmazonEC2", 2),
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	latest, err = repo.LatestUsageEnd(ctx, accountID)
	if err != nil {
		t.Fatalf("watermark failed: %v", err)
	}
	want := late.Add(24 * time.Hour)
	if latest == nil || !latest.Equal(want) {
		t.Fatalf("expected watermark %v, got %v", want, latest)
	}
}
