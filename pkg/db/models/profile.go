package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile holds saved shipping details used to prefill checkout.
type Profile struct {
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	FullName     string    `gorm:"column:full_name"`
	Email        string    `gorm:"column:email"`
	Phone        string    `gorm:"column:phone"`
	AddressLine1 string    `gorm:"column:address_line1"`
	AddressLine2 string    `gorm:"column:address_line2"`
	City         string    `gorm:"column:city"`
	PostalCode   string    `gorm:"column:postal_code"`
	Country      string    `gorm:"column:country"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
