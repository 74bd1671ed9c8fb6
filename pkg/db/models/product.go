package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog entry checkout prices against.
type Product struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name      string           `gorm:"column:name;not null"`
	BasePrice decimal.Decimal  `gorm:"column:base_price;type:numeric(12,2);not null"`
	IsActive  bool             `gorm:"column:is_active;not null;default:true"`
	Variants  []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductVariant carries per-size stock and an optional price override.
type ProductVariant struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID        `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_product_variants_product_size"`
	Size          string           `gorm:"column:size;not null;uniqueIndex:ux_product_variants_product_size"`
	Stock         int              `gorm:"column:stock;not null;default:0;check:stock >= 0"`
	PriceOverride *decimal.Decimal `gorm:"column:price_override;type:numeric(12,2)"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// UnitPrice returns the override when present, otherwise the product base price.
func (v ProductVariant) UnitPrice(product Product) decimal.Decimal {
	if v.PriceOverride != nil {
		return *v.PriceOverride
	}
	return product.BasePrice
}
