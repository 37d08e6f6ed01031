// Package service implements range-parameterized cost aggregation queries.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	"github.com/cloudtally/cloudtally/internal/clock"
	"github.com/cloudtally/cloudtally/internal/costreport/domain"
	"github.com/cloudtally/cloudtally/internal/observability/metrics"
	organizationdomain "github.com/cloudtally/cloudtally/internal/organization/domain"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Accounts accountdomain.Repository
	Orgs     organizationdomain.Repository
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	accounts accountdomain.Repository
	orgs     organizationdomain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("costreport.service"),
		clock:    p.Clock,
		accounts: p.Accounts,
		orgs:     p.Orgs,
	}
}

func (s *service) ResolveRange(params domain.RangeParams) (domain.DateRange, error) {
	today := s.clock.Now().UTC().Truncate(24 * time.Hour)

	until := today
	if params.Until != nil {
		until = params.Until.UTC().Truncate(24 * time.Hour)
	}

	var since time.Time
	switch {
	case params.Since != nil:
		since = params.Since.UTC().Truncate(24 * time.Hour)
	case params.Days != nil:
		if *params.Days <= 0 {
			return domain.DateRange{}, fmt.Errorf("%w: days must be positive", domain.ErrInvalidRange)
		}
		since = today.AddDate(0, 0, -*params.Days)
	default:
		since = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	}

	if since.After(until) {
		return domain.DateRange{}, fmt.Errorf("%w: since %s is after until %s",
			domain.ErrInvalidRange, since.Format("2006-01-02"), until.Format("2006-01-02"))
	}
	return domain.DateRange{Since: since, Until: until}, nil
}

// dayExpr and monthExpr return the SQL that buckets usage_start into text
// day/month keys for the active dialect.
func (s *service) dayExpr() string {
	if s.db.Dialector.Name() == "sqlite" {
		return "strftime('%Y-%m-%d', usage_start)"
	}
	return "to_char(usage_start, 'YYYY-MM-DD')"
}

func (s *service) monthExpr() string {
	if s.db.Dialector.Name() == "sqlite" {
		return "strftime('%Y-%m', usage_start)"
	}
	return "to_char(usage_start, 'YYYY-MM')"
}

func (s *service) resolveAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := s.accounts.GetByID(ctx, accountID)
	return err
}

func (s *service) DailyCosts(ctx context.Context, accountID uuid.UUID, r domain.DateRange) ([]domain.DailyCost, error) {
	metrics.Ingest().IncCostRequest(metrics.CostRequestDaily)
	if err := s.resolveAccount(ctx, accountID); err != nil {
		return nil, err
	}

	rows := []domain.DailyCost{}
	err := s.db.WithContext(ctx).Raw(fmt.Sprintf(
		`SELECT %s AS day, SUM(cost) AS cost
		 FROM billing_records
		 WHERE account_id = ? AND usage_start >= ? AND usage_start < ?
		 GROUP BY day
		 ORDER BY day ASC`, s.dayExpr()),
		accountID, r.Since, r.ExclusiveEnd(),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *service) CostByService(ctx context.Context, accountID uuid.UUID, r domain.DateRange) ([]domain.DimensionCost, error) {
	metrics.Ingest().IncCostRequest(metrics.CostRequestByService)
	return s.costByDimension(ctx, accountID, r, "service_name")
}

func (s *service) CostByRegion(ctx context.Context, accountID uuid.UUID, r domain.DateRange) ([]domain.DimensionCost, error) {
	metrics.Ingest().IncCostRequest(metrics.CostRequestByRegion)
	return s.costByDimension(ctx, accountID, r, "region")
}

func (s *service) costByDimension(ctx context.Context, accountID uuid.UUID, r domain.DateRange, column string) ([]domain.DimensionCost, error) {
	if err := s.resolveAccount(ctx, accountID); err != nil {
		return nil, err
	}

	rows := []domain.DimensionCost{}
	err := s.db.WithContext(ctx).Raw(fmt.Sprintf(
		`SELECT %s AS name, SUM(cost) AS cost
		 FROM billing_records
		 WHERE account_id = ? AND usage_start >= ? AND usage_start < ?
		 GROUP BY %s
		 ORDER BY cost DESC, name ASC`, column, column),
		accountID, r.Since, r.ExclusiveEnd(),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *service) UsageByServiceDay(ctx context.Context, accountID uuid.UUID, r domain.DateRange) ([]domain.ServiceDayUsage, error) {
	metrics.Ingest().IncCostRequest(metrics.CostRequestUsage)
	if err := s.resolveAccount(ctx, accountID); err != nil {
		return nil, err
	}

	rows := []domain.ServiceDayUsage{}
	err := s.db.WithContext(ctx).Raw(fmt.Sprintf(
		`SELECT service_name, %s AS day, SUM(usage_amount) AS usage_amount
		 FROM billing_records
		 WHERE account_id = ? AND usage_start >= ? AND usage_start < ?
		 GROUP BY service_name, day
		 ORDER BY service_name ASC, day ASC`, s.dayExpr()),
		accountID, r.Since, r.ExclusiveEnd(),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type monthlyRow struct {
	ServiceName string  `gorm:"column:service_name"`
	Month       string  `gorm:"column:month"`
	Cost        float64 `gorm:"column:cost"`
	UsageAmount float64 `gorm:"column:usage_amount"`
}

func (s *service) MonthlyServiceTotals(ctx context.Context, accountID uuid.UUID, r domain.DateRange) ([]domain.ServiceMonthly, error) {
	metrics.Ingest().IncCostRequest(metrics.CostRequestMonthly)
	if err := s.resolveAccount(ctx, accountID); err != nil {
		return nil, err
	}

	var rows []monthlyRow
	err := s.db.WithContext(ctx).Raw(fmt.Sprintf(
		`SELECT service_name, %s AS month,
		        COALESCE(SUM(cost), 0) AS cost,
		        COALESCE(SUM(usage_amount), 0) AS usage_amount
		 FROM billing_records
		 WHERE account_id = ? AND usage_start >= ? AND usage_start < ?
		 GROUP BY service_name, month
		 ORDER BY service_name ASC, month ASC`, s.monthExpr()),
		accountID, r.Since, r.ExclusiveEnd(),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	months := monthKeys(r)
	byService := map[string]map[string]monthlyRow{}
	order := []string{}
	for _, row := range rows {
		if _, ok := byService[row.ServiceName]; !ok {
			byService[row.ServiceName] = map[string]monthlyRow{}
			order = append(order, row.ServiceName)
		}
		byService[row.ServiceName][row.Month] = row
	}

	result := make([]domain.ServiceMonthly, 0, len(order))
	for _, name := range order {
		entry := domain.ServiceMonthly{ServiceName: name, Months: make([]domain.MonthBucket, 0, len(months))}
		for _, month := range months {
			bucket := domain.MonthBucket{Month: month}
			if row, ok := byService[name][month]; ok {
				bucket.Cost = row.Cost
				bucket.UsageAmount = row.UsageAmount
			}
			entry.Months = append(entry.Months, bucket)
		}
		result = append(result, entry)
	}
	return result, nil
}

// monthKeys lists every YYYY-MM bucket the range touches, in order.
func monthKeys(r domain.DateRange) []string {
	var keys []string
	cursor := time.Date(r.Since.Year(), r.Since.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(r.Until.Year(), r.Until.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(last) {
		keys = append(keys, cursor.Format("2006-01"))
		cursor = cursor.AddDate(0, 1, 0)
	}
	return keys
}

func (s *service) AccountTotals(ctx context.Context, accountID uuid.UUID, r domain.DateRange) (*domain.Totals, error) {
	metrics.Ingest().IncCostRequest(metrics.CostRequestSummary)
	if err := s.resolveAccount(ctx, accountID); err != nil {
		return nil, err
	}

	totals, err := s.totalsWhere(ctx, r, "account_id = ?", accountID)
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *service) OrgSummary(ctx context.Context, orgID uuid.UUID, r domain.DateRange) (*domain.OrgSummary, error) {
	metrics.Ingest().IncCostRequest(metrics.CostRequestSummary)

	summaries, err := s.BatchOrgSummary(ctx, []uuid.UUID{orgID}, r)
	if err != nil {
		return nil, err
	}
	return &summaries[0], nil
}

type accountTotalsRow struct {
	AccountID   uuid.UUID `gorm:"column:account_id"`
	Name        string    `gorm:"column:name"`
	Provider    string    `gorm:"column:provider"`
	TotalToday  float64   `gorm:"column:total_today"`
	TotalPeriod float64   `gorm:"column:total_period"`
}

func (s *service) BatchOrgSummary(ctx context.Context, orgIDs []uuid.UUID, r domain.DateRange) ([]domain.OrgSummary, error) {
	metrics.Ingest().IncCostRequest(metrics.CostRequestSummary)

	orgs, err := s.orgs.ListByIDs(ctx, orgIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*organizationdomain.Organization, len(orgs))
	for _, org := range orgs {
		byID[org.ID] = &org
	}

	today := s.clock.Now().UTC().Truncate(24 * time.Hour)
	tomorrow := today.AddDate(0, 0, 1)

	summaries := make([]domain.OrgSummary, 0, len(orgIDs))
	seen := map[uuid.UUID]struct{}{}
	for _, orgID := range orgIDs {
		if _, dup := seen[orgID]; dup {
			continue
		}
		seen[orgID] = struct{}{}
		org := byID[orgID]

		var rows []accountTotalsRow
		err := s.db.WithContext(ctx).Raw(
			`SELECT ca.id AS account_id, ca.name AS name, ca.provider AS provider,
			        COALESCE(SUM(CASE WHEN br.usage_start >= ? AND br.usage_start < ? THEN br.cost END), 0) AS total_today,
			        COALESCE(SUM(CASE WHEN br.usage_start >= ? AND br.usage_start < ? THEN br.cost END), 0) AS total_period
			 FROM cloud_accounts ca
			 LEFT JOIN billing_records br ON br.account_id = ca.id
			 WHERE ca.org_id = ?
			 GROUP BY ca.id, ca.name, ca.provider
			 ORDER BY ca.name ASC`,
			today, tomorrow,
			r.Since, r.ExclusiveEnd(),
			orgID,
		).Scan(&rows).Error
		if err != nil {
			return nil, err
		}

		summary := domain.OrgSummary{
			OrgID:    orgID,
			Name:     org.Name,
			Accounts: make([]domain.AccountTotals, 0, len(rows)),
		}
		for _, row := range rows {
			summary.Totals.TotalToday += row.TotalToday
			summary.Totals.TotalPeriod += row.TotalPeriod
			summary.Accounts = append(summary.Accounts, domain.AccountTotals{
				AccountID: row.AccountID,
				Name:      row.Name,
				Provider:  row.Provider,
				Totals: domain.Totals{
					TotalToday:  row.TotalToday,
					TotalPeriod: row.TotalPeriod,
				},
			})
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *service) totalsWhere(ctx context.Context, r domain.DateRange, where string, args ...interface{}) (*domain.Totals, error) {
	today := s.clock.Now().UTC().Truncate(24 * time.Hour)
	tomorrow := today.AddDate(0, 0, 1)

	var totals domain.Totals
	queryArgs := []interface{}{today, tomorrow, r.Since, r.ExclusiveEnd()}
	queryArgs = append(queryArgs, args...)
	err := s.db.WithContext(ctx).Raw(fmt.Sprintf(
		`SELECT COALESCE(SUM(CASE WHEN usage_start >= ? AND usage_start < ? THEN cost END), 0) AS total_today,
		        COALESCE(SUM(CASE WHEN usage_start >= ? AND usage_start < ? THEN cost END), 0) AS total_period
		 FROM billing_records
		 WHERE %s`, where),
		queryArgs...,
	).Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
