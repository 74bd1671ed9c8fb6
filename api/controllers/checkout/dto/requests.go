package checkoutdto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type ItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Size      string    `json:"size" validate:"required,max=16"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=99"`
}

type InitRequest struct {
	Items      []ItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
	CouponCode string        `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
}

type CreateSessionRequest struct {
	Shipping    types.ShippingInfo `json:"shipping"`
	Items       []ItemRequest      `json:"items" validate:"required,min=1,max=50,dive"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Currency    string             `json:"currency" validate:"required,len=3"`
	CouponCode  string             `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
}

type SessionIDRequest struct {
	SessionID uuid.UUID `json:"session_id" validate:"required"`
}

type CouponIntentRequest struct {
	Code         string          `json:"code" validate:"required,max=64"`
	Total        decimal.Decimal `json:"total"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
}
