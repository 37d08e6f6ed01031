package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	accountrepo "github.com/cloudtally/cloudtally/internal/account/repository"
	billingdomain "github.com/cloudtally/cloudtally/internal/billing/domain"
	"github.com/cloudtally/cloudtally/internal/clock"
	"github.com/cloudtally/cloudtally/internal/costreport/domain"
	organizationdomain "github.com/cloudtally/cloudtally/internal/organization/domain"
	orgrepo "github.com/cloudtally/cloudtally/internal/organization/repository"
	"github.com/cloudtally/cloudtally/pkg/db"
)

type fixture struct {
	svc     domain.Service
	db      *gorm.DB
	clock   *clock.FakeClock
	org     organizationdomain.Organization
	account accountdomain.CloudAccount
	seq     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	models := []interface{}{
		&organizationdomain.Organization{},
		&accountdomain.CloudAccount{},
		&billingdomain.BillingRecord{},
	}
	if err := dbConn.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	org := organizationdomain.Organization{ID: uuid.New(), Name: "Main"}
	if err := dbConn.Create(&org).Error; err != nil {
		t.Fatalf("failed to seed org: %v", err)
	}
	account := accountdomain.CloudAccount{
		ID:                uuid.New(),
		OrgID:             org.ID,
		Name:              "prod",
		Provider:          "aws",
		ProviderAccountID: "123456789012",
		Active:            true,
	}
	if err := dbConn.Create(&account).Error; err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:       dbConn,
		Log:      zap.NewNop(),
		Clock:    fake,
		Accounts: accountrepo.NewRepository(dbConn),
		Orgs:     orgrepo.NewRepository(dbConn),
	})

	return &fixture{svc: svc, db: dbConn, clock: fake, org: org, account: account}
}

func (f *fixture) insert(t *testing.T, day string, serviceName, region string, cost, usage float64) {
	t.Helper()
	start, err := time.Parse("2006-01-02", day)
	if err != nil {
		t.Fatalf("bad day %q: %v", day, err)
	}
	f.seq++
	record := billingdomain.BillingRecord{
		ID:          snowflake.ID(f.seq),
		AccountID:   f.account.ID,
		UsageStart:  start,
		UsageEnd:    start.AddDate(0, 0, 1),
		ServiceName: serviceName,
		CostType:    "Usage",
		Region:      region,
		Cost:        cost,
		UsageAmount: usage,
		Currency:    "USD",
	}
	if err := f.db.Create(&record).Error; err != nil {
		t.Fatalf("failed to insert record: %v", err)
	}
}

func wholeRange() domain.DateRange {
	return domain.DateRange{
		Since: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestResolveRangePrecedence(t *testing.T) {
	f := newFixture(t)
	days := 7
	since := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	// Explicit since wins over days.
	r, err := f.svc.ResolveRange(domain.RangeParams{Days: &days, Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("ResolveRange returned error: %v", err)
	}
	if !r.Since.Equal(since) || !r.Until.Equal(until) {
		t.Errorf("unexpected range %+v", r)
	}

	// Days back from today.
	r, err = f.svc.ResolveRange(domain.RangeParams{Days: &days})
	if err != nil {
		t.Fatalf("ResolveRange returned error: %v", err)
	}
	if !r.Since.Equal(time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected days-back since %v", r.Since)
	}
	if !r.Until.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("until should default to today, got %v", r.Until)
	}

	// Month-to-date default.
	r, err = f.svc.ResolveRange(domain.RangeParams{})
	if err != nil {
		t.Fatalf("ResolveRange returned error: %v", err)
	}
	if !r.Since.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected month-to-date since %v", r.Since)
	}
}

func TestResolveRangeRejectsInvertedRange(t *testing.T) {
	f := newFixture(t)
	since := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.ResolveRange(domain.RangeParams{Since: &since, Until: &until})
	if !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
}

func TestDailyCostsAndCostByService(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "2025-01-01", "A", "us-east-1", 10, 1)
	f.insert(t, "2025-01-01", "B", "us-east-1", 5, 1)
	f.insert(t, "2025-01-02", "A", "eu-west-1", 7, 1)

	daily, err := f.svc.DailyCosts(context.Background(), f.account.ID, wholeRange())
	if err != nil {
		t.Fatalf("DailyCosts returned error: %v", err)
	}
	want := []domain.DailyCost{
		{Day: "2025-01-01", Cost: 15},
		{Day: "2025-01-02", Cost: 7},
	}
	if len(daily) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(daily))
	}
	for i := range want {
		if daily[i] != want[i] {
			t.Errorf("day %d: expected %+v, got %+v", i, want[i], daily[i])
		}
	}

	byService, err := f.svc.CostByService(context.Background(), f.account.ID, wholeRange())
	if err != nil {
		t.Fatalf("CostByService returned error: %v", err)
	}
	if len(byService) != 2 || byService[0].Name != "A" || byService[0].Cost != 17 || byService[1].Name != "B" || byService[1].Cost != 5 {
		t.Errorf("unexpected service totals: %+v", byService)
	}
}

func TestCostByRegion(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "2025-01-01", "A", "us-east-1", 3, 1)
	f.insert(t, "2025-01-02", "A", "eu-west-1", 9, 1)
	f.insert(t, "2025-01-03", "B", "us-east-1", 2, 1)

	byRegion, err := f.svc.CostByRegion(context.Background(), f.account.ID, wholeRange())
	if err != nil {
		t.Fatalf("CostByRegion returned error: %v", err)
	}
	if len(byRegion) != 2 || byRegion[0].Name != "eu-west-1" || byRegion[0].Cost != 9 || byRegion[1].Name != "us-east-1" || byRegion[1].Cost != 5 {
		t.Errorf("unexpected region totals: %+v", byRegion)
	}
}

func TestUsageByServiceDay(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "2025-01-01", "A", "", 1, 24)
	f.insert(t, "2025-01-02", "A", "", 1, 12)
	f.insert(t, "2025-01-01", "B", "", 1, 100)

	rows, err := f.svc.UsageByServiceDay(context.Background(), f.account.ID, wholeRange())
	if err != nil {
		t.Fatalf("UsageByServiceDay returned error: %v", err)
	}
	want := []domain.ServiceDayUsage{
		{ServiceName: "A", Day: "2025-01-01", UsageAmount: 24},
		{ServiceName: "A", Day: "2025-01-02", UsageAmount: 12},
		{ServiceName: "B", Day: "2025-01-01", UsageAmount: 100},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d: expected %+v, got %+v", i, want[i], rows[i])
		}
	}
}

func TestMonthlyServiceTotalsCoalescesEmptyBuckets(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "2025-01-05", "A", "", 10, 5)
	f.insert(t, "2025-03-05", "A", "", 20, 8)

	r := domain.DateRange{
		Since: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	result, err := f.svc.MonthlyServiceTotals(context.Background(), f.account.ID, r)
	if err != nil {
		t.Fatalf("MonthlyServiceTotals returned error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 service, got %d", len(result))
	}
	months := result[0].Months
	if len(months) != 3 {
		t.Fatalf("expected 3 month buckets, got %d", len(months))
	}
	if months[0].Month != "2025-01" || months[0].Cost != 10 {
		t.Errorf("unexpected first bucket: %+v", months[0])
	}
	if months[1].Month != "2025-02" || months[1].Cost != 0 || months[1].UsageAmount != 0 {
		t.Errorf("february should coalesce to zero: %+v", months[1])
	}
	if months[2].Month != "2025-03" || months[2].Cost != 20 {
		t.Errorf("unexpected third bucket: %+v", months[2])
	}
}

func TestAccountTotalsSeparatesTodayFromPeriod(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "2025-01-15", "A", "", 4, 1) // today for the fake clock
	f.insert(t, "2025-01-10", "A", "", 6, 1)
	f.insert(t, "2024-12-01", "A", "", 100, 1) // outside the period

	r := wholeRange()
	totals, err := f.svc.AccountTotals(context.Background(), f.account.ID, r)
	if err != nil {
		t.Fatalf("AccountTotals returned error: %v", err)
	}
	if totals.TotalToday != 4 {
		t.Errorf("expected total_today 4, got %v", totals.TotalToday)
	}
	if totals.TotalPeriod != 10 {
		t.Errorf("expected total_period 10, got %v", totals.TotalPeriod)
	}
}

func TestAccountQueriesRequireExistingAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.DailyCosts(context.Background(), uuid.New(), wholeRange())
	if !errors.Is(err, accountdomain.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestBatchOrgSummary(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "2025-01-10", "A", "", 6, 1)
	f.insert(t, "2025-01-15", "A", "", 4, 1)

	other := organizationdomain.Organization{ID: uuid.New(), Name: "Empty Org"}
	if err := f.db.Create(&other).Error; err != nil {
		t.Fatalf("failed to seed second org: %v", err)
	}

	summaries, err := f.svc.BatchOrgSummary(context.Background(), []uuid.UUID{f.org.ID, other.ID}, wholeRange())
	if err != nil {
		t.Fatalf("BatchOrgSummary returned error: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}

	first := summaries[0]
	if first.OrgID != f.org.ID || first.Totals.TotalPeriod != 10 || first.Totals.TotalToday != 4 {
		t.Errorf("unexpected first summary: %+v", first)
	}
	if len(first.Accounts) != 1 || first.Accounts[0].AccountID != f.account.ID {
		t.Errorf("unexpected account breakdown: %+v", first.Accounts)
	}

	second := summaries[1]
	if second.OrgID != other.ID || second.Totals.TotalPeriod != 0 || len(second.Accounts) != 0 {
		t.Errorf("expected empty summary for org without accounts: %+v", second)
	}
}

func TestBatchOrgSummaryFailsFast(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BatchOrgSummary(context.Background(), []uuid.UUID{f.org.ID, uuid.New()}, wholeRange())
	if !errors.Is(err, organizationdomain.ErrOrganizationNotFound) {
		t.Fatalf("expected organization not found, got %v", err)
	}
}
