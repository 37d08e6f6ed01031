// Package seed bootstraps the default organization on startup.
package seed

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	organizationdomain "github.com/cloudtally/cloudtally/internal/organization/domain"
)

const defaultOrgName = "Main"

// EnsureDefaultOrg creates the default organization if no organization with
// its name exists yet. Safe to run on every startup.
func EnsureDefaultOrg(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing organizationdomain.Organization
		err := tx.Where("name = ?", defaultOrgName).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		org := organizationdomain.Organization{
			ID:   uuid.New(),
			Name: defaultOrgName,
		}
		return tx.Create(&org).Error
	})
}
