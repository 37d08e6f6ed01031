// Package domain contains persistence models for the organization registry.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ErrOrganizationNotFound indicates the organization does not exist.
var ErrOrganizationNotFound = errors.New("organization_not_found")

// Organization represents a tenant that owns cloud accounts.
type Organization struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string            `gorm:"type:text;not null;uniqueIndex:idx_organizations_name" json:"name"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }
