// Package service orchestrates ingestion runs: fetch from the vendor,
// normalize, and upsert into billing_records.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	billingdomain "github.com/cloudtally/cloudtally/internal/billing/domain"
	"github.com/cloudtally/cloudtally/internal/clock"
	"github.com/cloudtally/cloudtally/internal/config"
	credentialdomain "github.com/cloudtally/cloudtally/internal/credential/domain"
	"github.com/cloudtally/cloudtally/internal/ingest/domain"
	"github.com/cloudtally/cloudtally/internal/observability/metrics"
	"github.com/cloudtally/cloudtally/internal/ratelimit"
	"github.com/cloudtally/cloudtally/internal/vendors/adapters"
	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Holder      *config.IngestionConfigHolder
	Registry    *adapters.Registry
	Accounts    accountdomain.Repository
	Credentials credentialdomain.Service
	Billing     billingdomain.Repository
	Gate        *ratelimit.IngestGate `optional:"true"`
	OTel        *metrics.Metrics      `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	holder      *config.IngestionConfigHolder
	registry    *adapters.Registry
	accounts    accountdomain.Repository
	credentials credentialdomain.Service
	billing     billingdomain.Repository
	gate        *ratelimit.IngestGate
	otel        *metrics.Metrics

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("ingest.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		holder:      p.Holder,
		registry:    p.Registry,
		accounts:    p.Accounts,
		credentials: p.Credentials,
		billing:     p.Billing,
		gate:        p.Gate,
		otel:        p.OTel,
		running:     map[uuid.UUID]struct{}{},
	}
}

func (s *service) PlanWindow(ctx context.Context, accountID uuid.UUID) (vendordomain.Window, error) {
	cfg := s.holder.Get()

	watermark, err := s.billing.LatestUsageEnd(ctx, accountID)
	if err != nil {
		return vendordomain.Window{}, err
	}

	today := s.clock.Now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -cfg.LookbackDays)
	if watermark != nil && watermark.After(start) {
		start = watermark.UTC().Truncate(24 * time.Hour)
	}
	if !start.Before(today) {
		return vendordomain.Window{}, domain.ErrEmptyWindow
	}
	return vendordomain.Window{Start: start, End: today}, nil
}

func (s *service) RunAccount(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error) {
	account, err := s.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, accountdomain.ErrAccountInactive
	}

	adapter, err := s.registry.Adapter(account.Provider)
	if err != nil {
		return nil, err
	}

	if !s.tryAcquire(account.ID) {
		return nil, domain.ErrRunInProgress
	}
	defer s.release(account.ID)

	lockToken, locked, err := s.gate.TryLockAccount(ctx, account.ID.String())
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, domain.ErrRunInProgress
	}
	defer func() {
		if err := s.gate.ReleaseAccount(context.WithoutCancel(ctx), account.ID.String(), lockToken); err != nil {
			s.log.Warn("failed to release ingest lock", zap.String("account_id", account.ID.String()), zap.Error(err))
		}
	}()

	var window vendordomain.Window
	if req.Window != nil {
		window = *req.Window
	} else {
		window, err = s.PlanWindow(ctx, account.ID)
		if err != nil {
			return nil, err
		}
	}
	if !window.Start.Before(window.End) {
		return nil, domain.ErrEmptyWindow
	}

	started := s.clock.Now()
	result, err := s.run(ctx, *account, adapter, window)
	duration := s.clock.Now().Sub(started)

	ingestMetrics := metrics.Ingest()
	ingestMetrics.IncIngestRun(account.Provider)
	ingestMetrics.ObserveIngestDuration(account.Provider, duration)
	if err != nil {
		ingestMetrics.IncIngestError(account.Provider, err)
		s.log.Error("ingest run failed",
			zap.String("account_id", account.ID.String()),
			zap.String("provider", account.Provider),
			zap.String("reason", metrics.ClassifyIngestReason(err)),
			zap.Error(err),
		)
		return nil, err
	}
	ingestMetrics.AddIngestRecords(account.Provider, result.Upserted)
	s.otel.AddRecordsUpserted(ctx, account.Provider, result.Upserted)

	result.AccountID = account.ID
	result.Provider = account.Provider
	result.Window = window
	result.Duration = duration
	s.log.Info("ingest run complete",
		zap.String("account_id", account.ID.String()),
		zap.String("provider", account.Provider),
		zap.Time("window_start", window.Start),
		zap.Time("window_end", window.End),
		zap.Int("fetched", result.Fetched),
		zap.Int("skipped", result.Skipped),
		zap.Int("upserted", result.Upserted),
		zap.Int("attempts", result.Attempts),
	)
	return result, nil
}

func (s *service) run(ctx context.Context, account accountdomain.CloudAccount, adapter vendordomain.Adapter, window vendordomain.Window) (*domain.RunResult, error) {
	creds, err := s.credentials.EnsureValid(ctx, account)
	if err != nil {
		return nil, err
	}

	result := &domain.RunResult{}
	groups, err := s.fetchWithRetry(ctx, account, adapter, creds, window, result)
	if err != nil {
		return nil, err
	}
	result.Fetched = len(groups)

	records := make([]billingdomain.BillingRecord, 0, len(groups))
	for _, group := range groups {
		if group.Empty() {
			result.Skipped++
			continue
		}
		records = append(records, s.normalize(account.ID, group))
	}

	if len(records) == 0 {
		return result, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upserted, err := s.billing.WithTx(tx).UpsertBatch(ctx, records)
		if err != nil {
			return err
		}
		result.Upserted = upserted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// fetchWithRetry calls the vendor with bounded exponential backoff. An auth
// denial triggers exactly one forced credential refresh before giving up.
func (s *service) fetchWithRetry(ctx context.Context, account accountdomain.CloudAccount, adapter vendordomain.Adapter, creds vendordomain.Credentials, window vendordomain.Window, result *domain.RunResult) ([]vendordomain.UsageGroup, error) {
	cfg := s.holder.Get()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt + 1

		if attempt > 0 {
			if err := s.backoff(ctx, cfg, attempt); err != nil {
				return nil, err
			}
		}

		allowed, err := s.gate.AllowVendorCall(ctx, account.Provider)
		if err != nil {
			s.log.Warn("vendor rate gate unavailable", zap.String("provider", account.Provider), zap.Error(err))
		} else if !allowed {
			lastErr = vendordomain.ErrRateLimited
			continue
		}

		groups, err := s.fetchOnce(ctx, cfg, adapter, account, creds, window)
		if err == nil {
			return groups, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, vendordomain.ErrAuthDenied) && !result.Refreshed:
			result.Refreshed = true
			refreshed, refreshErr := s.credentials.ForceRefresh(ctx, account)
			if refreshErr != nil {
				return nil, refreshErr
			}
			creds = refreshed
		case metrics.IsIngestErrorRetryable(err):
			// retry after backoff
		default:
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *service) fetchOnce(ctx context.Context, cfg config.IngestionConfig, adapter vendordomain.Adapter, account accountdomain.CloudAccount, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
	callCtx := ctx
	if cfg.VendorCallLimit > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cfg.VendorCallLimit)
		defer cancel()
	}

	ref := vendordomain.AccountRef{
		OrgID:             account.OrgID,
		AccountID:         account.ID,
		Provider:          account.Provider,
		ProviderAccountID: account.ProviderAccountID,
	}
	groups, err := adapter.FetchUsage(callCtx, ref, creds, window)
	if err != nil {
		s.otel.RecordVendorCall(ctx, account.Provider, metrics.ClassifyIngestReason(err))
		return nil, err
	}
	s.otel.RecordVendorCall(ctx, account.Provider, "ok")
	return groups, nil
}

func (s *service) backoff(ctx context.Context, cfg config.IngestionConfig, attempt int) error {
	delay := cfg.BackoffBase << (attempt - 1)
	if delay > cfg.BackoffCap {
		delay = cfg.BackoffCap
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (s *service) normalize(accountID uuid.UUID, group vendordomain.UsageGroup) billingdomain.BillingRecord {
	var metadata datatypes.JSONMap
	if len(group.Metadata) > 0 {
		metadata = datatypes.JSONMap(group.Metadata)
	}
	currency := group.Currency
	if currency == "" {
		currency = "USD"
	}
	return billingdomain.BillingRecord{
		ID:          s.genID.Generate(),
		AccountID:   accountID,
		UsageStart:  group.UsageStart.UTC(),
		UsageEnd:    group.UsageEnd.UTC(),
		ServiceName: group.ServiceName,
		CostType:    group.CostType,
		Region:      group.Region,
		ResourceID:  group.ResourceID,
		Cost:        group.Cost,
		Currency:    currency,
		UsageAmount: group.UsageAmount,
		UsageUnit:   group.UsageUnit,
		Metadata:    metadata,
	}
}

func (s *service) tryAcquire(accountID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[accountID]; ok {
		return false
	}
	s.running[accountID] = struct{}{}
	return true
}

func (s *service) release(accountID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, accountID)
}
