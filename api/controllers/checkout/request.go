package checkout

import (
	"strings"

	checkoutdto "github.com/angelmondragon/storefront-backend/api/controllers/checkout/dto"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func toItemInputs(items []checkoutdto.ItemRequest) []checkoutsvc.ItemInput {
	out := make([]checkoutsvc.ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, checkoutsvc.ItemInput{
			ProductID: item.ProductID,
			Size:      strings.TrimSpace(item.Size),
			Quantity:  item.Quantity,
		})
	}
	return out
}

func toInitInput(payload checkoutdto.InitRequest) checkoutsvc.InitInput {
	return checkoutsvc.InitInput{
		Items:      toItemInputs(payload.Items),
		CouponCode: strings.TrimSpace(payload.CouponCode),
	}
}

func toCreateSessionInput(payload checkoutdto.CreateSessionRequest) (checkoutsvc.CreateSessionInput, error) {
	if !payload.TotalAmount.IsPositive() {
		return checkoutsvc.CreateSessionInput{}, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"total_amount": "must be greater than 0"})
	}
	return checkoutsvc.CreateSessionInput{
		Items:       toItemInputs(payload.Items),
		Shipping:    payload.Shipping,
		TotalAmount: payload.TotalAmount,
		Currency:    strings.TrimSpace(payload.Currency),
		CouponCode:  strings.TrimSpace(payload.CouponCode),
	}, nil
}

func validateCouponIntent(payload checkoutdto.CouponIntentRequest) error {
	details := map[string]string{}
	if payload.Total.IsNegative() {
		details["total"] = "must not be negative"
	}
	if payload.ShippingCost.IsNegative() {
		details["shipping_cost"] = "must not be negative"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}
