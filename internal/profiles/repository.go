package profiles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Repository reads saved shipping profiles.
type Repository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindByUserID returns nil when the user never saved a profile.
func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// ShippingPrefill maps a saved profile onto checkout shipping fields.
func ShippingPrefill(profile *models.Profile) *types.ShippingInfo {
	if profile == nil {
		return nil
	}
	return &types.ShippingInfo{
		FullName:     profile.FullName,
		Email:        profile.Email,
		Phone:        profile.Phone,
		AddressLine1: profile.AddressLine1,
		AddressLine2: profile.AddressLine2,
		City:         profile.City,
		PostalCode:   profile.PostalCode,
		Country:      types.NormalizeCountry(profile.Country),
	}
}
