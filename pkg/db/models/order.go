package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is created once per paid checkout session.
type Order struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	CheckoutSessionID uuid.UUID          `gorm:"column:checkout_session_id;type:uuid;not null;uniqueIndex:ux_orders_checkout_session"`
	Status            enums.OrderStatus  `gorm:"column:status;type:varchar(16);not null;default:'pending'"`
	TotalAmount       decimal.Decimal    `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency          enums.Currency     `gorm:"column:currency;type:varchar(3);not null"`
	Shipping          types.ShippingInfo `gorm:"column:shipping;type:jsonb;not null"`
	PaymentIntentID   string             `gorm:"column:payment_intent_id;not null"`
	Items             []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:RESTRICT"`
	PaidAt            *time.Time         `gorm:"column:paid_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is immutable once written with its order.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariantID uuid.UUID       `gorm:"column:variant_id;type:uuid;not null"`
	Size      string          `gorm:"column:size;not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
