package products

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

var (
	// ErrProductUnavailable covers unknown and inactive products.
	ErrProductUnavailable = errors.New("product not available")
	// ErrVariantNotFound is returned when the product has no variant for the size.
	ErrVariantNotFound = errors.New("variant not found")
)

// PricedVariant is a variant with the unit price checkout charges for it.
type PricedVariant struct {
	Product   models.Product
	Variant   models.ProductVariant
	UnitPrice decimal.Decimal
}

// Repository resolves catalog prices. Catalog CRUD lives elsewhere.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	PriceBySize(ctx context.Context, productID uuid.UUID, size string) (*PricedVariant, error)
	PriceByVariantID(ctx context.Context, variantID uuid.UUID) (*PricedVariant, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog pricing repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) PriceBySize(ctx context.Context, productID uuid.UUID, size string) (*PricedVariant, error) {
	product, err := r.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	var variant models.ProductVariant
	err = r.db.WithContext(ctx).
		Where("product_id = ? AND size = ?", productID, size).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, err
	}
	return &PricedVariant{Product: *product, Variant: variant, UnitPrice: variant.UnitPrice(*product)}, nil
}

func (r *repository) PriceByVariantID(ctx context.Context, variantID uuid.UUID) (*PricedVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).Where("id = ?", variantID).First(&variant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, err
	}

	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", variant.ProductID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductUnavailable
		}
		return nil, err
	}
	return &PricedVariant{Product: product, Variant: variant, UnitPrice: variant.UnitPrice(product)}, nil
}

func (r *repository) activeProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", productID, true).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductUnavailable
		}
		return nil, err
	}
	return &product, nil
}
