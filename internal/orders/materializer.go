package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/products"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	orderInsertSavepoint = "order_insert"
	orderSessionIndex    = "ux_orders_checkout_session"
)

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Result is the outcome of one materialization.
type Result struct {
	Order      *models.Order
	Shortfalls []inventory.Shortfall
	// Existing is set when the session had already been materialized.
	Existing bool
}

// Fulfilled reports whether every line was covered by stock.
func (r *Result) Fulfilled() bool {
	return r != nil && len(r.Shortfalls) == 0
}

type MaterializerParams struct {
	Orders   Repository
	Sessions checkout.Repository
	Products products.Repository
	Ledger   *inventory.Ledger
	Outbox   outboxEmitter
	Metrics  *metrics.ReconcileMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

// Materializer turns a paid checkout session into exactly one order.
type Materializer struct {
	orders   Repository
	sessions checkout.Repository
	products products.Repository
	ledger   *inventory.Ledger
	outbox   outboxEmitter
	metrics  *metrics.ReconcileMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewMaterializer(params MaterializerParams) (*Materializer, error) {
	if params.Orders == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Sessions == nil {
		return nil, errors.New("checkout repository required")
	}
	if params.Products == nil {
		return nil, errors.New("product repository required")
	}
	if params.Ledger == nil {
		return nil, errors.New("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Materializer{
		orders:   params.Orders,
		sessions: params.Sessions,
		products: params.Products,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Materialize creates the order for a paid session inside tx. The session's
// order_id marker and the unique index on orders.checkout_session_id make a
// repeated call return the existing order without touching stock again.
// Stock shortfalls do not fail the call: the order stays pending and an
// order_fulfillment_exception event is queued for manual follow-up.
func (m *Materializer) Materialize(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, source enums.ReconcileSource) (*Result, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if session == nil {
		return nil, errors.New("checkout session required")
	}
	if session.Status != enums.CheckoutSessionStatusPaid {
		return nil, fmt.Errorf("checkout session %s is %s, not paid", session.ID, session.Status)
	}

	orders := m.orders.WithTx(tx)
	if session.OrderID != nil {
		return m.existing(ctx, orders, session.ID)
	}

	now := m.now().UTC()
	order, err := m.buildOrder(ctx, tx, session)
	if err != nil {
		return nil, err
	}

	if err := tx.SavePoint(orderInsertSavepoint).Error; err != nil {
		return nil, fmt.Errorf("savepoint: %w", err)
	}
	if err := orders.Create(ctx, order); err != nil {
		if !dbpkg.IsUniqueViolation(err, orderSessionIndex) {
			return nil, fmt.Errorf("insert order: %w", err)
		}
		if rbErr := tx.RollbackTo(orderInsertSavepoint).Error; rbErr != nil {
			return nil, fmt.Errorf("rollback order insert: %w", rbErr)
		}
		return m.existing(ctx, orders, session.ID)
	}

	marked, err := m.sessions.WithTx(tx).MarkMaterialized(ctx, session.ID, order.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark session materialized: %w", err)
	}
	if !marked {
		if rbErr := tx.RollbackTo(orderInsertSavepoint).Error; rbErr != nil {
			return nil, fmt.Errorf("rollback order insert: %w", rbErr)
		}
		return m.existing(ctx, orders, session.ID)
	}
	session.OrderID = &order.ID
	session.MaterializedAt = &now

	shortfalls, err := m.decrementStock(ctx, tx, order)
	if err != nil {
		return nil, err
	}

	logCtx := m.logg.WithFields(m.logg.WithCheckout(ctx, session.ID.String(), session.IntentID()), map[string]any{
		"order_id": order.ID.String(),
		"source":   source.String(),
	})

	if len(shortfalls) > 0 {
		m.metrics.IncShortfall()
		if err := m.outbox.EmitIfNotExists(ctx, tx, fulfillmentExceptionEvent(session, order, shortfalls, now)); err != nil {
			return nil, fmt.Errorf("emit fulfillment exception: %w", err)
		}
		m.logg.Warn(m.logg.WithField(logCtx, "shortfalls", len(shortfalls)), "order materialized with stock shortfall")
		return &Result{Order: order, Shortfalls: shortfalls}, nil
	}

	if _, err := orders.MarkPaid(ctx, order.ID, now); err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	order.Status = enums.OrderStatusPaid
	order.PaidAt = &now

	if err := m.outbox.EmitIfNotExists(ctx, tx, orderPaidEvent(session, order, source, now)); err != nil {
		return nil, fmt.Errorf("emit order paid: %w", err)
	}
	m.logg.Info(logCtx, "order materialized")
	return &Result{Order: order}, nil
}

func (m *Materializer) existing(ctx context.Context, orders Repository, sessionID uuid.UUID) (*Result, error) {
	order, err := orders.FindByCheckoutSessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load existing order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("checkout session %s is marked materialized but has no order", sessionID)
	}
	return &Result{Order: order, Existing: true}, nil
}

// buildOrder snapshots the session and re-reads unit prices from the catalog.
// A line whose variant has since been removed keeps its session price.
func (m *Materializer) buildOrder(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession) (*models.Order, error) {
	if len(session.Items) == 0 {
		return nil, fmt.Errorf("checkout session %s has no items", session.ID)
	}
	catalog := m.products.WithTx(tx)
	order := &models.Order{
		ID:                uuid.New(),
		UserID:            session.UserID,
		CheckoutSessionID: session.ID,
		Status:            enums.OrderStatusPending,
		TotalAmount:       session.TotalAmount,
		Currency:          session.Currency,
		Shipping:          session.Shipping,
		PaymentIntentID:   session.IntentID(),
		Items:             make([]models.OrderItem, 0, len(session.Items)),
	}
	for _, line := range session.Items {
		unitPrice := line.UnitPrice
		priced, err := catalog.PriceByVariantID(ctx, line.VariantID)
		switch {
		case err == nil:
			unitPrice = priced.UnitPrice
		case errors.Is(err, products.ErrVariantNotFound), errors.Is(err, products.ErrProductUnavailable):
			m.logg.Warn(m.logg.WithField(ctx, "variant_id", line.VariantID.String()), "variant missing at materialization, using session price")
		default:
			return nil, fmt.Errorf("price variant %s: %w", line.VariantID, err)
		}
		order.Items = append(order.Items, models.OrderItem{
			OrderID:   order.ID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Size:      line.Size,
			Quantity:  line.Quantity,
			UnitPrice: unitPrice,
		})
	}
	return order, nil
}

func (m *Materializer) decrementStock(ctx context.Context, tx *gorm.DB, order *models.Order) ([]inventory.Shortfall, error) {
	ledger := m.ledger.WithTx(tx)
	var shortfalls []inventory.Shortfall
	for _, item := range order.Items {
		err := ledger.Decrement(ctx, item.VariantID, item.Quantity)
		if err == nil {
			continue
		}
		if !errors.Is(err, inventory.ErrInsufficientStock) {
			return nil, err
		}
		available, availErr := ledger.Available(ctx, item.VariantID)
		if availErr != nil && !errors.Is(availErr, inventory.ErrVariantNotFound) {
			return nil, availErr
		}
		shortfalls = append(shortfalls, inventory.Shortfall{
			VariantID: item.VariantID,
			ProductID: item.ProductID,
			Size:      item.Size,
			Requested: item.Quantity,
			Available: available,
		})
	}
	return shortfalls, nil
}

func orderPaidEvent(session *models.CheckoutSession, order *models.Order, source enums.ReconcileSource, at time.Time) outbox.DomainEvent {
	lines := make([]payloads.OrderItemLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderItemLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: session.UserID, Source: source.String()},
		Version:       1,
		OccurredAt:    at,
		Data: payloads.OrderPaidEvent{
			OrderID:           order.ID,
			CheckoutSessionID: session.ID,
			UserID:            session.UserID,
			PaymentIntentID:   order.PaymentIntentID,
			TotalAmount:       order.TotalAmount,
			Currency:          order.Currency,
			Source:            source,
			Items:             lines,
			PaidAt:            at,
		},
	}
}

func fulfillmentExceptionEvent(session *models.CheckoutSession, order *models.Order, shortfalls []inventory.Shortfall, at time.Time) outbox.DomainEvent {
	items := make([]payloads.StockShortfall, 0, len(shortfalls))
	for _, s := range shortfalls {
		items = append(items, payloads.StockShortfall{
			VariantID: s.VariantID,
			ProductID: s.ProductID,
			Size:      s.Size,
			Requested: s.Requested,
			Available: s.Available,
		})
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderFulfillmentException,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: session.UserID},
		Version:       1,
		OccurredAt:    at,
		Data: payloads.OrderFulfillmentExceptionEvent{
			OrderID:           order.ID,
			CheckoutSessionID: session.ID,
			UserID:            session.UserID,
			PaymentIntentID:   order.PaymentIntentID,
			Shortfalls:        items,
			DetectedAt:        at,
		},
	}
}
