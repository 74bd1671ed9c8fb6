package checkout

import (
	checkoutdto "github.com/angelmondragon/storefront-backend/api/controllers/checkout/dto"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func newPricedItems(items types.SessionItems) []checkoutdto.PricedItem {
	out := make([]checkoutdto.PricedItem, 0, len(items))
	for _, item := range items {
		out = append(out, checkoutdto.PricedItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
		})
	}
	return out
}

func newInitResponse(result *checkoutsvc.InitResult) checkoutdto.InitResponse {
	warnings := result.StockWarnings
	if warnings == nil {
		warnings = []inventory.Shortfall{}
	}
	return checkoutdto.InitResponse{
		Items:         newPricedItems(result.Items),
		Subtotal:      result.Totals.Subtotal,
		ShippingCost:  result.Totals.ShippingCost,
		Discount:      result.Totals.Discount,
		Total:         result.Totals.Total,
		Currency:      result.Currency,
		CouponCode:    result.Totals.CouponCode,
		CouponError:   result.CouponError,
		StockWarnings: warnings,
		Profile:       result.Profile,
	}
}

func newSessionResponse(session *models.CheckoutSession) checkoutdto.SessionResponse {
	return checkoutdto.SessionResponse{
		SessionID:       session.ID,
		Status:          session.Status,
		Items:           newPricedItems(session.Items),
		Shipping:        session.Shipping,
		Subtotal:        session.Subtotal,
		ShippingCost:    session.ShippingCost,
		Discount:        session.Discount,
		CouponCode:      session.CouponCode,
		TotalAmount:     session.TotalAmount,
		Currency:        session.Currency,
		PaymentIntentID: session.PaymentIntentID,
		OrderID:         session.OrderID,
	}
}

func newPaymentIntentResponse(result *checkoutsvc.PaymentIntentResult) checkoutdto.PaymentIntentResponse {
	return checkoutdto.PaymentIntentResponse{
		SessionID:       result.SessionID,
		PaymentIntentID: result.IntentID,
		ClientSecret:    result.ClientSecret,
		Amount:          result.AmountMinor,
		Currency:        result.Currency,
		Reused:          result.Reused,
		RaceRecovered:   result.RaceRecovered,
	}
}

func newValidateIntentResponse(confirmation *reconcile.Confirmation) checkoutdto.ValidateIntentResponse {
	return checkoutdto.ValidateIntentResponse{
		Valid:  confirmation.Valid,
		Status: string(confirmation.Status),
	}
}
