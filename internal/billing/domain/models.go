// Package domain contains persistence models for normalized billing data.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BillingRecord is one normalized cost line. The unique tuple
// (account, window, service, cost type, resource) makes re-ingestion of the
// same window idempotent.
type BillingRecord struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	AccountID   uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uq_billing_records_line,priority:1" json:"account_id"`
	UsageStart  time.Time         `gorm:"not null;uniqueIndex:uq_billing_records_line,priority:2;index:idx_billing_records_account_start" json:"usage_start"`
	UsageEnd    time.Time         `gorm:"not null;uniqueIndex:uq_billing_records_line,priority:3" json:"usage_end"`
	ServiceName string            `gorm:"type:text;not null;uniqueIndex:uq_billing_records_line,priority:4;index" json:"service_name"`
	CostType    string            `gorm:"type:text;not null;uniqueIndex:uq_billing_records_line,priority:5" json:"cost_type"`
	Region      string            `gorm:"type:text;not null;default:''" json:"region,omitempty"`
	ResourceID  string            `gorm:"type:text;not null;default:'';uniqueIndex:uq_billing_records_line,priority:6" json:"resource_id,omitempty"`
	Cost        float64           `gorm:"not null;default:0" json:"cost"`
	Currency    string            `gorm:"type:text;not null;default:'USD'" json:"currency"`
	UsageAmount float64           `gorm:"not null;default:0" json:"usage_amount"`
	UsageUnit   string            `gorm:"type:text;not null;default:''" json:"usage_unit,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (BillingRecord) TableName() string { return "billing_records" }
