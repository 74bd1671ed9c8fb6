package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ShippingInfo is the delivery contact captured at checkout and snapshotted on orders.
type ShippingInfo struct {
	FullName     string `json:"full_name" validate:"required,max=200"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone,omitempty" validate:"omitempty,max=40"`
	AddressLine1 string `json:"address_line1" validate:"required,max=200"`
	AddressLine2 string `json:"address_line2,omitempty" validate:"omitempty,max=200"`
	City         string `json:"city" validate:"required,max=120"`
	PostalCode   string `json:"postal_code" validate:"required,max=20"`
	Country      string `json:"country" validate:"required,len=2"`
}

// Value serializes the shipping info to JSON.
func (s ShippingInfo) Value() (driver.Value, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the shipping info struct.
func (s *ShippingInfo) Scan(value interface{}) error {
	if value == nil {
		*s = ShippingInfo{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, s)
}

// SessionItem is one priced line captured when a checkout session is created.
type SessionItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	VariantID uuid.UUID       `json:"variant_id"`
	Name      string          `json:"name"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal returns unit price times quantity.
func (i SessionItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SessionItems is the ordered item snapshot stored as JSONB.
type SessionItems []SessionItem

// Value serializes the items to JSON.
func (s SessionItems) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]SessionItem(s))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the item slice.
func (s *SessionItems) Scan(value interface{}) error {
	if value == nil {
		*s = SessionItems{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var items []SessionItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("decode session items: %w", err)
	}
	*s = items
	return nil
}

// Quantity returns the total unit count across items.
func (s SessionItems) Quantity() int {
	total := 0
	for _, item := range s {
		total += item.Quantity
	}
	return total
}

// asJSON accepts the driver representations of a json/jsonb column.
func asJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json column type %T", value)
	}
}

// MinorUnits converts a decimal amount into the smallest currency unit (cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts cents back into a two-place decimal.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// NormalizeCountry upper-cases an ISO 3166 alpha-2 code.
func NormalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
