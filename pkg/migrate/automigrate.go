package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&models.Product{},
		&models.ProductVariant{},
		&models.Profile{},
		&models.Cart{},
		&models.CartItem{},
		&models.Coupon{},
		&models.CheckoutSession{},
		&models.Order{},
		&models.OrderItem{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// AutoMigrate builds the schema from the gorm models. Used for the sqlite
// driver, where the Postgres goose migrations do not apply.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
