package checkoutdto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type PricedItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	VariantID uuid.UUID       `json:"variant_id"`
	Name      string          `json:"name"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type InitResponse struct {
	Items         []PricedItem          `json:"items"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	ShippingCost  decimal.Decimal       `json:"shipping_cost"`
	Discount      decimal.Decimal       `json:"discount"`
	Total         decimal.Decimal       `json:"total"`
	Currency      enums.Currency        `json:"currency"`
	CouponCode    string                `json:"coupon_code,omitempty"`
	CouponError   string                `json:"coupon_error,omitempty"`
	StockWarnings []inventory.Shortfall `json:"stock_warnings"`
	Profile       *types.ShippingInfo   `json:"profile,omitempty"`
}

type SessionResponse struct {
	SessionID       uuid.UUID                   `json:"session_id"`
	Status          enums.CheckoutSessionStatus `json:"status"`
	Items           []PricedItem                `json:"items"`
	Shipping        types.ShippingInfo          `json:"shipping"`
	Subtotal        decimal.Decimal             `json:"subtotal"`
	ShippingCost    decimal.Decimal             `json:"shipping_cost"`
	Discount        decimal.Decimal             `json:"discount"`
	CouponCode      *string                     `json:"coupon_code,omitempty"`
	TotalAmount     decimal.Decimal             `json:"total_amount"`
	Currency        enums.Currency              `json:"currency"`
	PaymentIntentID *string                     `json:"payment_intent_id,omitempty"`
	OrderID         *uuid.UUID                  `json:"order_id,omitempty"`
}

type PaymentIntentResponse struct {
	SessionID       uuid.UUID      `json:"session_id"`
	PaymentIntentID string         `json:"payment_intent_id"`
	ClientSecret    string         `json:"client_secret"`
	Amount          int64          `json:"amount"`
	Currency        enums.Currency `json:"currency"`
	Reused          bool           `json:"reused"`
	RaceRecovered   bool           `json:"race_recovered"`
}

type ValidateIntentResponse struct {
	Valid  bool   `json:"valid"`
	Status string `json:"status,omitempty"`
}

type DeleteSessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Deleted   bool      `json:"deleted"`
}
