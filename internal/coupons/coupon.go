package coupons

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Quote is the outcome of applying a coupon to an order total.
type Quote struct {
	Code       string           `json:"code"`
	Type       enums.CouponType `json:"type"`
	Discount   decimal.Decimal  `json:"discount"`
	FinalTotal decimal.Decimal  `json:"final_total"`
}

// Evaluate applies the coupon to total (items) plus shippingCost. Rejections
// are validation errors carrying a message safe to show the shopper.
func Evaluate(coupon models.Coupon, total, shippingCost decimal.Decimal, now time.Time) (*Quote, error) {
	if !coupon.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is not active")
	}
	if coupon.ExpiresAt != nil && !coupon.ExpiresAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon has expired")
	}
	if total.LessThan(coupon.MinOrder) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "minimum order of %s required", coupon.MinOrder.StringFixed(2))
	}

	var discount decimal.Decimal
	switch coupon.Type {
	case enums.CouponTypePercent:
		discount = total.Mul(coupon.Value).Div(hundred).Round(2)
	case enums.CouponTypeFixed:
		discount = coupon.Value
	case enums.CouponTypeFreeShipping:
		discount = shippingCost
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon type not supported")
	}

	gross := total.Add(shippingCost)
	if discount.GreaterThan(gross) {
		discount = gross
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	return &Quote{
		Code:       coupon.Code,
		Type:       coupon.Type,
		Discount:   discount,
		FinalTotal: gross.Sub(discount),
	}, nil
}
