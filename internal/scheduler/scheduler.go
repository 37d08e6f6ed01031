// Package scheduler drives periodic ingestion runs across all active
// pull-eligible accounts.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	"github.com/cloudtally/cloudtally/internal/clock"
	"github.com/cloudtally/cloudtally/internal/config"
	ingestdomain "github.com/cloudtally/cloudtally/internal/ingest/domain"
	obsmetrics "github.com/cloudtally/cloudtally/internal/observability/metrics"
	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

var ErrInvalidConfig = errors.New("scheduler missing required dependencies")

// pullProviders lists the vendors we poll on a schedule. OAuth vendors are
// ingested on demand through the HTTP trigger instead, right after the
// customer completes authorization.
var pullProviders = []string{vendordomain.ProviderAWS}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Holder   *config.IngestionConfigHolder
	Accounts accountdomain.Repository
	Ingest   ingestdomain.Service
}

type Scheduler struct {
	log      *zap.Logger
	clock    clock.Clock
	holder   *config.IngestionConfigHolder
	accounts accountdomain.Repository
	ingest   ingestdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Holder == nil || p.Accounts == nil || p.Ingest == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		clock:    p.Clock,
		holder:   p.Holder,
		accounts: p.Accounts,
		ingest:   p.Ingest,
	}, nil
}

// RunOnce ingests every active pull-eligible account, bounded by the
// configured worker pool. Up-to-date and already-running accounts are
// skipped, not errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	cfg := s.holder.Get()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.MaxConcurrent)

	var jobErr error
	for _, provider := range pullProviders {
		accounts, err := s.accounts.ListActiveByProvider(ctx, provider)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}

		for _, account := range accounts {
			account := account
			group.Go(func() error {
				s.runAccount(groupCtx, account)
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		jobErr = errors.Join(jobErr, err)
	}
	return jobErr
}

func (s *Scheduler) runAccount(ctx context.Context, account accountdomain.CloudAccount) {
	if ctx.Err() != nil {
		return
	}

	result, err := s.ingest.RunAccount(ctx, ingestdomain.RunRequest{AccountID: account.ID})
	switch {
	case err == nil:
		s.log.Info("scheduled ingest complete",
			zap.String("account_id", account.ID.String()),
			zap.String("provider", account.Provider),
			zap.Int("upserted", result.Upserted),
		)
	case errors.Is(err, ingestdomain.ErrEmptyWindow):
		s.log.Debug("account up to date", zap.String("account_id", account.ID.String()))
	case errors.Is(err, ingestdomain.ErrRunInProgress):
		s.log.Debug("account run already in flight", zap.String("account_id", account.ID.String()))
	default:
		s.log.Warn("scheduled ingest failed",
			zap.String("account_id", account.ID.String()),
			zap.String("provider", account.Provider),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) RunForever(ctx context.Context) {
	interval := s.holder.Get().RunInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(interval)
	ingestMetrics := obsmetrics.Ingest()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			ingestMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		// Pick up hot-reloaded interval changes between runs.
		if updated := s.holder.Get().RunInterval; updated != interval {
			interval = updated
			ticker.Reset(interval)
		}
		nextRun = nextRun.Add(interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
