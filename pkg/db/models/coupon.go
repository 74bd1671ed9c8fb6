package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Coupon is a redeemable discount code.
type Coupon struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Code      string           `gorm:"column:code;not null;uniqueIndex"`
	Type      enums.CouponType `gorm:"column:type;type:varchar(32);not null"`
	Value     decimal.Decimal  `gorm:"column:value;type:numeric(12,2);not null"`
	MinOrder  decimal.Decimal  `gorm:"column:min_order;type:numeric(12,2);not null;default:0"`
	IsActive  bool             `gorm:"column:is_active;not null;default:true"`
	ExpiresAt *time.Time       `gorm:"column:expires_at"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
