// Package domain defines the read-side reporting contract over billing records.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRange indicates since is after until.
	ErrInvalidRange = errors.New("invalid_date_range")
)

// RangeParams carries the raw range inputs from a request. Precedence when
// resolving: Since > Days > month-to-date. Until defaults to today.
type RangeParams struct {
	Days  *int
	Since *time.Time
	Until *time.Time
}

// DateRange is an inclusive [Since, Until] day range, both at UTC midnight.
type DateRange struct {
	Since time.Time `json:"start"`
	Until time.Time `json:"end"`
}

// ExclusiveEnd returns the first instant after the range, for half-open
// SQL comparisons.
func (r DateRange) ExclusiveEnd() time.Time {
	return r.Until.AddDate(0, 0, 1)
}

// DailyCost is one per-day cost bucket. Day is formatted YYYY-MM-DD.
type DailyCost struct {
	Day  string  `json:"day" gorm:"column:day"`
	Cost float64 `json:"cost" gorm:"column:cost"`
}

// DimensionCost is a cost total for one service or region value.
type DimensionCost struct {
	Name string  `json:"name" gorm:"column:name"`
	Cost float64 `json:"cost" gorm:"column:cost"`
}

// ServiceDayUsage is summed usage for one (service, day) pair.
type ServiceDayUsage struct {
	ServiceName string  `json:"service_name" gorm:"column:service_name"`
	Day         string  `json:"day" gorm:"column:day"`
	UsageAmount float64 `json:"usage_amount" gorm:"column:usage_amount"`
}

// MonthBucket is one month's totals inside a service's monthly series.
// Month is formatted YYYY-MM.
type MonthBucket struct {
	Month       string  `json:"month"`
	Cost        float64 `json:"cost"`
	UsageAmount float64 `json:"usage_amount"`
}

// ServiceMonthly groups a service's ordered month buckets.
type ServiceMonthly struct {
	ServiceName string        `json:"service_name"`
	Months      []MonthBucket `json:"months"`
}

// Totals carries the two summary scalars every dashboard tile needs.
type Totals struct {
	TotalToday  float64 `json:"total_today" gorm:"column:total_today"`
	TotalPeriod float64 `json:"total_period" gorm:"column:total_period"`
}

// AccountTotals is Totals scoped to one cloud account.
type AccountTotals struct {
	AccountID uuid.UUID `json:"account_id"`
	Name      string    `json:"name"`
	Provider  string    `json:"provider"`
	Totals
}

// OrgSummary is one organization's totals with a per-account breakdown.
type OrgSummary struct {
	OrgID    uuid.UUID       `json:"organization_id"`
	Name     string          `json:"name"`
	Totals   Totals          `json:"totals"`
	Accounts []AccountTotals `json:"accounts"`
}

type Service interface {
	// ResolveRange applies the precedence rules and validates ordering.
	ResolveRange(params RangeParams) (DateRange, error)

	DailyCosts(ctx context.Context, accountID uuid.UUID, r DateRange) ([]DailyCost, error)
	CostByService(ctx context.Context, accountID uuid.UUID, r DateRange) ([]DimensionCost, error)
	CostByRegion(ctx context.Context, accountID uuid.UUID, r DateRange) ([]DimensionCost, error)
	UsageByServiceDay(ctx context.Context, accountID uuid.UUID, r DateRange) ([]ServiceDayUsage, error)
	MonthlyServiceTotals(ctx context.Context, accountID uuid.UUID, r DateRange) ([]ServiceMonthly, error)

	AccountTotals(ctx context.Context, accountID uuid.UUID, r DateRange) (*Totals, error)
	OrgSummary(ctx context.Context, orgID uuid.UUID, r DateRange) (*OrgSummary, error)
	BatchOrgSummary(ctx context.Context, orgIDs []uuid.UUID, r DateRange) ([]OrgSummary, error)
}
