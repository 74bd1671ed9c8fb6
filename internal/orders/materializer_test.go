package orders

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/products"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type materializerFixture struct {
	conn     *gorm.DB
	m        *Materializer
	registry *prometheus.Registry
	outbox   *outbox.Repository
	product  *models.Product
	variants map[string]models.ProductVariant
}

func newMaterializerFixture(t *testing.T, stock map[string]int) *materializerFixture {
	t.Helper()
	conn := dbtest.Open(t)
	product, variants := dbtest.SeedProduct(t, conn, "Tee", "25.00", stock)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	outboxRepo := outbox.NewRepository(conn)
	reg := prometheus.NewRegistry()

	m, err := NewMaterializer(MaterializerParams{
		Orders:   NewRepository(conn),
		Sessions: checkout.NewRepository(conn),
		Products: products.NewRepository(conn),
		Ledger:   inventory.NewLedger(conn),
		Outbox:   outbox.NewService(outboxRepo, logg),
		Metrics:  metrics.NewReconcileMetrics(reg),
		Logger:   logg,
	})
	require.NoError(t, err)
	return &materializerFixture{conn: conn, m: m, registry: reg, outbox: outboxRepo, product: product, variants: variants}
}

// paidSession stores a session for qty units of size and moves it to paid.
func (f *materializerFixture) paidSession(t *testing.T, size string, qty int) *models.CheckoutSession {
	t.Helper()
	ctx := context.Background()
	repo := checkout.NewRepository(f.conn)
	variant := f.variants[size]
	unit := decimal.RequireFromString("25.00")
	total := unit.Mul(decimal.NewFromInt(int64(qty)))
	session := &models.CheckoutSession{
		UserID: uuid.New(),
		Items: types.SessionItems{{
			ProductID: f.product.ID,
			VariantID: variant.ID,
			Name:      f.product.Name,
			Size:      size,
			Quantity:  qty,
			UnitPrice: unit,
		}},
		Shipping:     types.ShippingInfo{FullName: "Ada", Email: "ada@example.com", AddressLine1: "1 Main", City: "Berlin", PostalCode: "10115", Country: "DE"},
		Subtotal:     total,
		ShippingCost: decimal.Zero,
		Discount:     decimal.Zero,
		TotalAmount:  total,
		Currency:     enums.CurrencyEUR,
	}
	require.NoError(t, repo.Create(ctx, session))
	intentID := "pi_" + session.ID.String()
	bound, _, err := repo.BindPaymentIntent(ctx, session.ID, session.UserID, intentID)
	require.NoError(t, err)
	require.True(t, bound)
	ok, err := repo.Transition(ctx, session.ID, enums.CheckoutSessionStatusPending, enums.CheckoutSessionStatusPaid, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	loaded, err := repo.FindByPaymentIntentID(ctx, intentID)
	require.NoError(t, err)
	return loaded
}

func (f *materializerFixture) materialize(t *testing.T, session *models.CheckoutSession) *Result {
	t.Helper()
	var result *Result
	err := dbpkg.Wrap(f.conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		result, err = f.m.Materialize(context.Background(), tx, session, enums.ReconcileSourceWebhook)
		return err
	})
	require.NoError(t, err)
	return result
}

func (f *materializerFixture) countOrders(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	return count
}

func (f *materializerFixture) shortfallCount(t *testing.T) float64 {
	t.Helper()
	mfs, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "materialize_shortfalls_total" {
			continue
		}
		return counterSum(mf)
	}
	return 0
}

func counterSum(mf *dto.MetricFamily) float64 {
	var total float64
	for _, metric := range mf.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	return total
}

func TestNewMaterializerRequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := NewMaterializer(MaterializerParams{})
	require.Error(t, err)
}

func TestMaterializeCreatesPaidOrderAndDecrementsStock(t *testing.T) {
	f := newMaterializerFixture(t, map[string]int{"M": 5})
	session := f.paidSession(t, "M", 2)

	result := f.materialize(t, session)

	require.NotNil(t, result.Order)
	assert.True(t, result.Fulfilled())
	assert.False(t, result.Existing)
	assert.Equal(t, enums.OrderStatusPaid, result.Order.Status)
	assert.True(t, result.Order.TotalAmount.Equal(decimal.RequireFromString("50.00")))
	assert.Equal(t, 3, dbtest.Stock(t, f.conn, f.variants["M"].ID))

	stored, err := NewRepository(f.conn).FindByCheckoutSessionID(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 2, stored.Items[0].Quantity)
	assert.Equal(t, session.IntentID(), stored.PaymentIntentID)
	assert.NotNil(t, stored.PaidAt)

	reloaded, err := checkout.NewRepository(f.conn).FindByPaymentIntentID(context.Background(), session.IntentID())
	require.NoError(t, err)
	require.NotNil(t, reloaded.OrderID)
	assert.Equal(t, stored.ID, *reloaded.OrderID)
	assert.NotNil(t, reloaded.MaterializedAt)

	events, err := f.outbox.ListForAggregate(context.Background(), enums.AggregateOrder, stored.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderPaid, events[0].EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var paid payloads.OrderPaidEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &paid))
	assert.Equal(t, session.ID, paid.CheckoutSessionID)
	assert.Equal(t, enums.ReconcileSourceWebhook, paid.Source)
	require.Len(t, paid.Items, 1)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	f := newMaterializerFixture(t, map[string]int{"M": 5})
	session := f.paidSession(t, "M", 2)
	stale := *session

	first := f.materialize(t, session)

	// session now carries the marker; stale still looks unmaterialized.
	again := f.materialize(t, session)
	assert.True(t, again.Existing)
	assert.Equal(t, first.Order.ID, again.Order.ID)

	raced := f.materialize(t, &stale)
	assert.True(t, raced.Existing)
	assert.Equal(t, first.Order.ID, raced.Order.ID)

	assert.Equal(t, int64(1), f.countOrders(t))
	assert.Equal(t, 3, dbtest.Stock(t, f.conn, f.variants["M"].ID))

	events, err := f.outbox.ListForAggregate(context.Background(), enums.AggregateOrder, first.Order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMaterializeRecordsShortfall(t *testing.T) {
	f := newMaterializerFixture(t, map[string]int{"S": 1})
	session := f.paidSession(t, "S", 2)

	result := f.materialize(t, session)

	assert.False(t, result.Fulfilled())
	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, 2, result.Shortfalls[0].Requested)
	assert.Equal(t, 1, result.Shortfalls[0].Available)
	assert.Equal(t, enums.OrderStatusPending, result.Order.Status)
	assert.Equal(t, 1, dbtest.Stock(t, f.conn, f.variants["S"].ID))
	assert.Equal(t, float64(1), f.shortfallCount(t))

	events, err := f.outbox.ListForAggregate(context.Background(), enums.AggregateOrder, result.Order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderFulfillmentException, events[0].EventType)
}

func TestMaterializeRepricesFromCatalog(t *testing.T) {
	f := newMaterializerFixture(t, map[string]int{"M": 5})
	session := f.paidSession(t, "M", 1)
	override := decimal.RequireFromString("19.50")
	require.NoError(t, f.conn.Model(&models.ProductVariant{}).
		Where("id = ?", f.variants["M"].ID).
		Update("price_override", override).Error)

	result := f.materialize(t, session)

	require.Len(t, result.Order.Items, 1)
	assert.True(t, result.Order.Items[0].UnitPrice.Equal(override))
	assert.True(t, result.Order.TotalAmount.Equal(session.TotalAmount))
}

func TestMaterializeNeverOversells(t *testing.T) {
	f := newMaterializerFixture(t, map[string]int{"L": 5})
	sessions := make([]*models.CheckoutSession, 0, 4)
	for i := 0; i < 4; i++ {
		sessions = append(sessions, f.paidSession(t, "L", 2))
	}

	results := make(chan *Result, len(sessions))
	errs := make(chan error, len(sessions))
	for _, session := range sessions {
		go func(session *models.CheckoutSession) {
			var result *Result
			err := dbpkg.Wrap(f.conn).WithTx(context.Background(), func(tx *gorm.DB) error {
				var err error
				result, err = f.m.Materialize(context.Background(), tx, session, enums.ReconcileSourceClientPoll)
				return err
			})
			results <- result
			errs <- err
		}(session)
	}

	fulfilled := 0
	for range sessions {
		require.NoError(t, <-errs)
		if (<-results).Fulfilled() {
			fulfilled++
		}
	}
	assert.Equal(t, 2, fulfilled)
	assert.Equal(t, 1, dbtest.Stock(t, f.conn, f.variants["L"].ID))
	assert.Equal(t, float64(2), f.shortfallCount(t))
}

func TestMaterializeRejectsUnpaidSession(t *testing.T) {
	f := newMaterializerFixture(t, map[string]int{"M": 5})
	session := f.paidSession(t, "M", 1)
	session.Status = enums.CheckoutSessionStatusPending

	err := dbpkg.Wrap(f.conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := f.m.Materialize(context.Background(), tx, session, enums.ReconcileSourceWebhook)
		return err
	})
	require.Error(t, err)
	assert.Equal(t, int64(0), f.countOrders(t))
}
