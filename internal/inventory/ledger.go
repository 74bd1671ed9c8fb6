package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

var (
	// ErrInsufficientStock is returned when a decrement would take stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrVariantNotFound is returned for unknown variant ids.
	ErrVariantNotFound = errors.New("variant not found")
)

// Request asks for quantity units of a variant.
type Request struct {
	VariantID uuid.UUID
	Quantity  int
}

// Shortfall describes a request the ledger could not satisfy.
type Shortfall struct {
	VariantID uuid.UUID `json:"variant_id"`
	ProductID uuid.UUID `json:"product_id"`
	Size      string    `json:"size"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Ledger owns every read and write of product_variants.stock.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx binds the ledger to the caller's transaction.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	if tx == nil {
		return l
	}
	return &Ledger{db: tx}
}

// Available returns the current stock of a variant.
func (l *Ledger) Available(ctx context.Context, variantID uuid.UUID) (int, error) {
	var variant models.ProductVariant
	err := l.db.WithContext(ctx).
		Select("id", "stock").
		Where("id = ?", variantID).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrVariantNotFound
		}
		return 0, err
	}
	return variant.Stock, nil
}

// Check reports the requests that current stock cannot cover. It is advisory:
// stock may change before Decrement runs.
func (l *Ledger) Check(ctx context.Context, requests []Request) ([]Shortfall, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	wanted := make(map[uuid.UUID]int, len(requests))
	ids := make([]uuid.UUID, 0, len(requests))
	for _, req := range requests {
		if _, seen := wanted[req.VariantID]; !seen {
			ids = append(ids, req.VariantID)
		}
		wanted[req.VariantID] += req.Quantity
	}

	var variants []models.ProductVariant
	if err := l.db.WithContext(ctx).Where("id IN ?", ids).Find(&variants).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.ProductVariant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}

	var shortfalls []Shortfall
	for _, id := range ids {
		variant, ok := byID[id]
		if !ok {
			shortfalls = append(shortfalls, Shortfall{VariantID: id, Requested: wanted[id]})
			continue
		}
		if variant.Stock < wanted[id] {
			shortfalls = append(shortfalls, Shortfall{
				VariantID: id,
				ProductID: variant.ProductID,
				Size:      variant.Size,
				Requested: wanted[id],
				Available: variant.Stock,
			})
		}
	}
	return shortfalls, nil
}

// Decrement removes quantity units in one conditional statement. Zero rows
// affected means the stock was insufficient; the row is left untouched.
func (l *Ledger) Decrement(ctx context.Context, variantID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("decrement quantity must be positive, got %d", quantity)
	}
	res := l.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ? AND stock >= ?", variantID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("decrement stock %s: %w", variantID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}
