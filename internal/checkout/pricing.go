package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/products"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const maxLineQuantity = 99

// ItemInput is one requested cart line.
type ItemInput struct {
	ProductID uuid.UUID
	Size      string
	Quantity  int
}

// Totals is the server-side price breakdown of a checkout.
type Totals struct {
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	CouponCode   string
}

// ShippingCost is free at or above threshold, otherwise the flat fee.
func ShippingCost(subtotal, threshold, fee decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(threshold) {
		return decimal.Zero
	}
	return fee
}

// priceItems resolves current catalog prices and returns the snapshot lines.
func priceItems(ctx context.Context, catalog products.Repository, items []ItemInput) (types.SessionItems, decimal.Decimal, error) {
	if len(items) == 0 {
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	lines := make(types.SessionItems, 0, len(items))
	subtotal := decimal.Zero
	for i, item := range items {
		if item.ProductID == uuid.Nil || item.Size == "" {
			return nil, decimal.Zero, pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: product_id and size are required", i)
		}
		if item.Quantity <= 0 || item.Quantity > maxLineQuantity {
			return nil, decimal.Zero, pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: quantity must be between 1 and %d", i, maxLineQuantity)
		}

		priced, err := catalog.PriceBySize(ctx, item.ProductID, item.Size)
		if err != nil {
			switch {
			case errors.Is(err, products.ErrProductUnavailable):
				return nil, decimal.Zero, pkgerrors.Wrapf(pkgerrors.CodeValidation, err, "product %s is not available", item.ProductID)
			case errors.Is(err, products.ErrVariantNotFound):
				return nil, decimal.Zero, pkgerrors.Wrapf(pkgerrors.CodeValidation, err, "size %s is not offered for product %s", item.Size, item.ProductID)
			default:
				return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product price")
			}
		}

		line := types.SessionItem{
			ProductID: priced.Product.ID,
			VariantID: priced.Variant.ID,
			Name:      priced.Product.Name,
			Size:      priced.Variant.Size,
			Quantity:  item.Quantity,
			UnitPrice: priced.UnitPrice,
		}
		lines = append(lines, line)
		subtotal = subtotal.Add(line.LineTotal())
	}
	return lines, subtotal, nil
}
