package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	accountrepo "github.com/cloudtally/cloudtally/internal/account/repository"
	billingdomain "github.com/cloudtally/cloudtally/internal/billing/domain"
	billingrepo "github.com/cloudtally/cloudtally/internal/billing/repository"
	"github.com/cloudtally/cloudtally/internal/clock"
	"github.com/cloudtally/cloudtally/internal/config"
	credentialdomain "github.com/cloudtally/cloudtally/internal/credential/domain"
	ingestdomain "github.com/cloudtally/cloudtally/internal/ingest/domain"
	organizationdomain "github.com/cloudtally/cloudtally/internal/organization/domain"
	"github.com/cloudtally/cloudtally/internal/vendors/adapters"
	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
	"github.com/cloudtally/cloudtally/pkg/db"
)

type credentialStub struct {
	creds        vendordomain.Credentials
	refreshed    vendordomain.Credentials
	ensureErr    error
	refreshCalls int
}

func (c *credentialStub) RegisterOAuth(ctx context.Context, req credentialdomain.RegisterOAuthRequest) (*credentialdomain.OAuthToken, error) {
	return nil, errors.New("not implemented")
}

func (c *credentialStub) RegisterAWSRole(ctx context.Context, req credentialdomain.RegisterAWSRoleRequest) (*credentialdomain.AWSRole, error) {
	return nil, errors.New("not implemented")
}

func (c *credentialStub) EnsureValid(ctx context.Context, account accountdomain.CloudAccount) (vendordomain.Credentials, error) {
	return c.creds, c.ensureErr
}

func (c *credentialStub) ForceRefresh(ctx context.Context, account accountdomain.CloudAccount) (vendordomain.Credentials, error) {
	c.refreshCalls++
	return c.refreshed, nil
}

type fakeAdapter struct {
	mu       sync.Mutex
	provider string
	calls    int
	fetch    func(call int, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error)

	started chan struct{}
	release chan struct{}
}

func (f *fakeAdapter) Provider() string { return f.provider }

func (f *fakeAdapter) FetchUsage(ctx context.Context, ref vendordomain.AccountRef, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.fetch(call, creds, window)
}

type harness struct {
	svc      ingestdomain.Service
	db       *gorm.DB
	clock    *clock.FakeClock
	creds    *credentialStub
	adapter  *fakeAdapter
	account  accountdomain.CloudAccount
	accounts accountdomain.Repository
}

func newHarness(t *testing.T, adapter *fakeAdapter) *harness {
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
		Provider:          adapter.provider,
		ProviderAccountID: "123456789012",
		Active:            true,
	}
	if err := dbConn.Create(&account).Error; err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2026, 8, 15, 6, 0, 0, 0, time.UTC))
	creds := &credentialStub{
		creds:     vendordomain.Credentials{AccessToken: "old"},
		refreshed: vendordomain.Credentials{AccessToken: "new"},
	}
	holder := config.NewStaticIngestionConfigHolder(config.IngestionConfig{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	})

	accounts := accountrepo.NewRepository(dbConn)
	svc := NewService(ServiceParam{
		DB:          dbConn,
		Log:         zap.NewNop(),
		Clock:       fake,
		GenID:       node,
		Holder:      holder,
		Registry:    adapters.NewRegistry(adapter),
		Accounts:    accounts,
		Credentials: creds,
		Billing:     billingrepo.NewRepository(dbConn),
	})

	return &harness{
		svc:      svc,
		db:       dbConn,
		clock:    fake,
		creds:    creds,
		adapter:  adapter,
		account:  account,
		accounts: accounts,
	}
}

func usageGroups() []vendordomain.UsageGroup {
	start := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	return []vendordomain.UsageGroup{
		{ServiceName: "Amazon EC2", CostType: "BoxUsage", Cost: 10.5, Currency: "USD", UsageAmount: 24, UsageUnit: "Hrs", UsageStart: start, UsageEnd: end},
		{ServiceName: "Amazon S3", CostType: "Requests", Cost: 0.2, Currency: "USD", UsageAmount: 1000, UsageUnit: "Requests", UsageStart: start, UsageEnd: end},
		{ServiceName: "AWS Free Tier", CostType: "Free", Cost: 0, UsageAmount: 0, UsageStart: start, UsageEnd: end},
	}
}

func TestRunAccountUpsertsAndSkipsEmptyLines(t *testing.T) {
	adapter := &fakeAdapter{
		provider: "aws",
		fetch: func(call int, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
			return usageGroups(), nil
		},
	}
	h := newHarness(t, adapter)

	result, err := h.svc.RunAccount(context.Background(), ingestdomain.RunRequest{AccountID: h.account.ID})
	if err != nil {
		t.Fatalf("RunAccount returned error: %v", err)
	}
	if result.Fetched != 3 || result.Skipped != 1 || result.Upserted != 2 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.Attempts != 1 || result.Refreshed {
		t.Errorf("unexpected retry state: %+v", result)
	}

	var count int64
	if err := h.db.Model(&billingdomain.BillingRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}
}

func TestRunAccountIsIdempotent(t *testing.T) {
	adapter := &fakeAdapter{
		provider: "aws",
		fetch: func(call int, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
			return usageGroups(), nil
		},
	}
	h := newHarness(t, adapter)

	for i := 0; i < 2; i++ {
		if _, err := h.svc.RunAccount(context.Background(), ingestdomain.RunRequest{AccountID: h.account.ID}); err != nil {
			t.Fatalf("run %d returned error: %v", i+1, err)
		}
	}

	var count int64
	if err := h.db.Model(&billingdomain.BillingRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected re-ingestion to keep 2 rows, got %d", count)
	}
}

func TestRunAccountRefreshesOnAuthDenied(t *testing.T) {
	adapter := &fakeAdapter{
		provider: "aws",
		fetch: func(call int, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
			if creds.AccessToken != "new" {
				return nil, vendordomain.ErrAuthDenied
			}
			return usageGroups(), nil
		},
	}
	h := newHarness(t, adapter)

	result, err := h.svc.RunAccount(context.Background(), ingestdomain.RunRequest{AccountID: h.account.ID})
	if err != nil {
		t.Fatalf("RunAccount returned error: %v", err)
	}
	if !result.Refreshed {
		t.Error("expected a forced credential refresh")
	}
	if h.creds.refreshCalls != 1 {
		t.Errorf("expected 1 refresh call, got %d", h.creds.refreshCalls)
	}
	if result.Upserted != 2 {
		t.Errorf("expected upserts after refresh, got %+v", result)
	}
}

func TestRunAccountSecondAuthDenialFails(t *testing.T) {
	adapter := &fakeAdapter{
		provider: "aws",
		fetch: func(call int, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
			return nil, vendordomain.ErrAuthDenied
		},
	}
	h := newHarness(t, adapter)

	_, err := h.svc.RunAccount(context.Background(), ingestdomain.RunRequest{AccountID: h.account.ID})
	if !errors.Is(err, vendordomain.ErrAuthDenied) {
		t.Fatalf("expected auth denied, got %v", err)
	}
	if h.creds.refreshCalls != 1 {
		t.Errorf("expected exactly 1 refresh attempt, got %d", h.creds.refreshCalls)
	}
}

func TestRunAccountRetriesTransientErrors(t *testing.T) {
	adapter := &fakeAdapter{
		provider: "aws",
		fetch: func(call int, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
			if call < 3 {
				return nil, vendordomain.ErrUnavailable
			}
			return usageGroups(), nil
		},
	}
	h := newHarness(t, adapter)

	result, err := h.svc.RunAccount(context.Background(), ingestdomain.RunRequest{AccountID: h.account.ID})
	if err != nil {
		t.Fatalf("RunAccount returned error: %v", err)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestRunAccountExhaustsRetryBudget(t *testing.T) {
	adapter := &fakeAdapter{
		provider: "aws",
		fetch: func(call int, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
			return nil, vendordomain.ErrRateLimited
		},
	}
	h := newHarness(t, adapter)

	_, err := h.svc.RunAccount(context.Background(), ingestdomain.RunRequest{AccountID: h.account.ID})
	if !errors.Is(err, vendordomain.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if adapter.calls != 3 {
		t.Errorf("expected 3 vendor calls, got %d", adapter.calls)
	}
}

func TestRunAccountRejectsInactiveAccount(t *testing.T) {
	adapter := &fakeAdapter{provider: "aws", fetch: func(int, vendordomain.Credentials, vendordomain.Window) ([]vendordomain.UsageGroup, error) {
		return nil, nil
	}}
	h := newHarness(t, adapter)

	h.account.Active = false
	if err := h.accounts.Update(context.Background(), h.account); err != nil {
		t.Fatalf("failed to deactivate account: %v", err)
	}

	_, err := h.svc.RunAccount(context.Background(), ingestdomain.RunRequest{AccountID: h.account.ID})
	if !errors.Is(err, accountdomain.ErrAccountInactive) {
		t.Fatalf("expected account inactive, got %v", err)
	}
}

func TestRunAccountRejectsConcurrentRun(t *testing.T) {
	adapter := &fakeAdapter{
		provider: "aws",
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
		fetch: func(call int, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
			return usageGroups(), nil
		},
	}
	h := newHarness(t, adapter)

	firstDone := make(chan error, 1)
	go func() {
		_, err := h.svc.RunAccount(context.Background(), ingestdomain.RunRequest{AccountID: h.account.ID})
		firstDone <- err
	}()

	<-adapter.started
	_, err := h.svc.RunAccount(context.Background(), ingestdomain.RunRequest{AccountID: h.account.ID})
	if !errors.Is(err, ingestdomain.ErrRunInProgress) {
		t.Fatalf("expected run in progress, got %v", err)
	}

	close(adapter.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first run returned error: %v", err)
	}
}

func TestPlanWindowUsesWatermark(t *testing.T) {
	adapter := &fakeAdapter{provider: "aws", fetch: func(int, vendordomain.Credentials, vendordomain.Window) ([]vendordomain.UsageGroup, error) {
		return nil, nil
	}}
	h := newHarness(t, adapter)

	// No records yet: window starts at the lookback horizon.
	window, err := h.svc.PlanWindow(context.Background(), h.account.ID)
	if err != nil {
		t.Fatalf("PlanWindow returned error: %v", err)
	}
	today := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	if !window.End.Equal(today) {
		t.Errorf("unexpected window end %v", window.End)
	}
	if !window.Start.Equal(today.AddDate(0, 0, -30)) {
		t.Errorf("unexpected window start %v", window.Start)
	}

	record := billingdomain.BillingRecord{
		ID:          snowflake.ID(1),
		AccountID:   h.account.ID,
		UsageStart:  time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC),
		UsageEnd:    time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC),
		ServiceName: "Amazon EC2",
		CostType:    "BoxUsage",
		Cost:        1,
	}
	if err := h.db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}

	window, err = h.svc.PlanWindow(context.Background(), h.account.ID)
	if err != nil {
		t.Fatalf("PlanWindow returned error: %v", err)
	}
	if !window.Start.Equal(record.UsageEnd) {
		t.Errorf("expected window to resume at watermark, got %v", window.Start)
	}
}

func TestPlanWindowEmptyWhenCaughtUp(t *testing.T) {
	adapter := &fakeAdapter{provider: "aws", fetch: func(int, vendordomain.Credentials, vendordomain.Window) ([]vendordomain.UsageGroup, error) {
		return nil, nil
	}}
	h := newHarness(t, adapter)

	record := billingdomain.BillingRecord{
		ID:          snowflake.ID(2),
		AccountID:   h.account.ID,
		UsageStart:  time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC),
		UsageEnd:    time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		ServiceName: "Amazon EC2",
		CostType:    "BoxUsage",
		Cost:        1,
	}
	if err := h.db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}

	_, err := h.svc.PlanWindow(context.Background(), h.account.ID)
	if !errors.Is(err, ingestdomain.ErrEmptyWindow) {
		t.Fatalf("expected empty window, got %v", err)
	}
}
