package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// CheckoutSession is one pending purchase attempt. PaymentIntentID is set once;
// OrderID marks the session as materialized.
type CheckoutSession struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index;uniqueIndex:ux_checkout_sessions_user_pending,where:status = 'pending'"`
	Items           types.SessionItems          `gorm:"column:items;type:jsonb;not null"`
	Shipping        types.ShippingInfo          `gorm:"column:shipping;type:jsonb;not null"`
	Subtotal        decimal.Decimal             `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingCost    decimal.Decimal             `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	Discount        decimal.Decimal             `gorm:"column:discount;type:numeric(12,2);not null"`
	CouponCode      *string                     `gorm:"column:coupon_code"`
	TotalAmount     decimal.Decimal             `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency        enums.Currency              `gorm:"column:currency;type:varchar(3);not null"`
	Status          enums.CheckoutSessionStatus `gorm:"column:status;type:varchar(16);not null;default:'pending';index"`
	PaymentIntentID *string                     `gorm:"column:payment_intent_id;uniqueIndex"`
	OrderID         *uuid.UUID                  `gorm:"column:order_id;type:uuid"`
	MaterializedAt  *time.Time                  `gorm:"column:materialized_at"`
	PaidAt          *time.Time                  `gorm:"column:paid_at"`
	FailedAt        *time.Time                  `gorm:"column:failed_at"`
	CanceledAt      *time.Time                  `gorm:"column:canceled_at"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// IntentID returns the bound payment intent id or "".
func (s CheckoutSession) IntentID() string {
	if s.PaymentIntentID == nil {
		return ""
	}
	return *s.PaymentIntentID
}

// Materialized reports whether an order was already created for the session.
func (s CheckoutSession) Materialized() bool {
	return s.OrderID != nil
}
