package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderItemLine is one materialized order line.
type OrderItemLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	VariantID uuid.UUID       `json:"variant_id"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPaidEvent is emitted once an order is paid and every stock decrement succeeded.
type OrderPaidEvent struct {
	OrderID           uuid.UUID             `json:"order_id"`
	CheckoutSessionID uuid.UUID             `json:"checkout_session_id"`
	UserID            uuid.UUID             `json:"user_id"`
	PaymentIntentID   string                `json:"payment_intent_id"`
	TotalAmount       decimal.Decimal       `json:"total_amount"`
	Currency          enums.Currency        `json:"currency"`
	Source            enums.ReconcileSource `json:"source"`
	Items             []OrderItemLine       `json:"items"`
	PaidAt            time.Time             `json:"paid_at"`
}

// StockShortfall describes one line that could not be decremented.
type StockShortfall struct {
	VariantID uuid.UUID `json:"variant_id"`
	ProductID uuid.UUID `json:"product_id"`
	Size      string    `json:"size"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// OrderFulfillmentExceptionEvent flags a paid order that stock could not cover.
type OrderFulfillmentExceptionEvent struct {
	OrderID           uuid.UUID        `json:"order_id"`
	CheckoutSessionID uuid.UUID        `json:"checkout_session_id"`
	UserID            uuid.UUID        `json:"user_id"`
	PaymentIntentID   string           `json:"payment_intent_id"`
	Shortfalls        []StockShortfall `json:"shortfalls"`
	DetectedAt        time.Time        `json:"detected_at"`
}

// CheckoutSessionExpiredEvent reports a stale pending session closed by the sweeper.
type CheckoutSessionExpiredEvent struct {
	CheckoutSessionID uuid.UUID `json:"checkout_session_id"`
	UserID            uuid.UUID `json:"user_id"`
	PaymentIntentID   string    `json:"payment_intent_id,omitempty"`
	IntentCanceled    bool      `json:"intent_canceled"`
	ExpiredAt         time.Time `json:"expired_at"`
}

// AggregateKey returns the id the event row must be keyed on.
func (e OrderPaidEvent) AggregateKey() uuid.UUID { return e.OrderID }

func (e OrderFulfillmentExceptionEvent) AggregateKey() uuid.UUID { return e.OrderID }

func (e CheckoutSessionExpiredEvent) AggregateKey() uuid.UUID { return e.CheckoutSessionID }
