package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// BeforeCreate assigns ids client-side so rows work on both Postgres and sqlite.
func (p *Product) BeforeCreate(*gorm.DB) error         { ensureID(&p.ID); return nil }
func (v *ProductVariant) BeforeCreate(*gorm.DB) error  { ensureID(&v.ID); return nil }
func (c *Cart) BeforeCreate(*gorm.DB) error            { ensureID(&c.ID); return nil }
func (c *CartItem) BeforeCreate(*gorm.DB) error        { ensureID(&c.ID); return nil }
func (c *Coupon) BeforeCreate(*gorm.DB) error          { ensureID(&c.ID); return nil }
func (s *CheckoutSession) BeforeCreate(*gorm.DB) error { ensureID(&s.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error           { ensureID(&o.ID); return nil }
func (o *OrderItem) BeforeCreate(*gorm.DB) error       { ensureID(&o.ID); return nil }
func (e *OutboxEvent) BeforeCreate(*gorm.DB) error     { ensureID(&e.ID); return nil }
func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error       { ensureID(&d.ID); return nil }
