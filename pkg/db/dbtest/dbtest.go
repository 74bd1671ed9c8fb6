// Package dbtest opens isolated in-memory sqlite databases with the service schema.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

// Open returns a migrated database private to the calling test. The pool is
// pinned to one connection so concurrent callers queue instead of hitting
// SQLITE_BUSY.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:sf_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// SeedProduct inserts an active product with one variant per size.
func SeedProduct(t testing.TB, conn *gorm.DB, name, price string, stock map[string]int) (*models.Product, map[string]models.ProductVariant) {
	t.Helper()

	product := &models.Product{
		Name:      name,
		BasePrice: decimal.RequireFromString(price),
		IsActive:  true,
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}

	variants := make(map[string]models.ProductVariant, len(stock))
	for size, qty := range stock {
		variant := models.ProductVariant{ProductID: product.ID, Size: size, Stock: qty}
		if err := conn.Create(&variant).Error; err != nil {
			t.Fatalf("create variant %s: %v", size, err)
		}
		variants[size] = variant
	}
	return product, variants
}

// SeedCoupon inserts an active coupon.
func SeedCoupon(t testing.TB, conn *gorm.DB, code string, typ enums.CouponType, value, minOrder string) *models.Coupon {
	t.Helper()

	coupon := &models.Coupon{
		Code:     code,
		Type:     typ,
		Value:    decimal.RequireFromString(value),
		MinOrder: decimal.RequireFromString(minOrder),
		IsActive: true,
	}
	if err := conn.Create(coupon).Error; err != nil {
		t.Fatalf("create coupon: %v", err)
	}
	return coupon
}

// Stock reads the current stock of a variant.
func Stock(t testing.TB, conn *gorm.DB, variantID uuid.UUID) int {
	t.Helper()

	var variant models.ProductVariant
	if err := conn.First(&variant, "id = ?", variantID).Error; err != nil {
		t.Fatalf("load variant: %v", err)
	}
	return variant.Stock
}
