package checkout

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/payments/paymentstest"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/profiles"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type fixture struct {
	conn     *gorm.DB
	svc      Service
	repo     Repository
	gateway  *paymentstest.Gateway
	product  *models.Product
	variants map[string]models.ProductVariant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	product, variants := dbtest.SeedProduct(t, conn, "Hoodie", "50.00", map[string]int{"M": 5, "L": 1})
	dbtest.SeedCoupon(t, conn, "SAVE10", enums.CouponTypePercent, "10", "50")

	couponSvc, err := coupons.NewService(coupons.ServiceParams{Repo: coupons.NewRepository(conn)})
	if err != nil {
		t.Fatalf("coupon service: %v", err)
	}
	gateway := paymentstest.NewGateway()
	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Products: products.NewRepository(conn),
		Stock:    inventory.NewLedger(conn),
		Coupons:  couponSvc,
		Profiles: profiles.NewRepository(conn),
		Gateway:  gateway,
		TxRunner: dbpkg.Wrap(conn),
		Config: config.CheckoutConfig{
			Currency:              "eur",
			FreeShippingThreshold: "80.00",
			ShippingFee:           "4.90",
		},
		Logger: logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("checkout service: %v", err)
	}
	return &fixture{conn: conn, svc: svc, repo: repo, gateway: gateway, product: product, variants: variants}
}

func shipping() types.ShippingInfo {
	return types.ShippingInfo{
		FullName:     "Grace Hopper",
		Email:        "grace@example.com",
		AddressLine1: "1 Harbor Rd",
		City:         "Arlington",
		PostalCode:   "22201",
		Country:      "us",
	}
}

func (f *fixture) sessionInput(qty int, total, coupon string) CreateSessionInput {
	return CreateSessionInput{
		Items:       []ItemInput{{ProductID: f.product.ID, Size: "M", Quantity: qty}},
		Shipping:    shipping(),
		TotalAmount: decimal.RequireFromString(total),
		Currency:    "EUR",
		CouponCode:  coupon,
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestShippingCostThreshold(t *testing.T) {
	t.Parallel()
	threshold := decimal.RequireFromString("80")
	fee := decimal.RequireFromString("4.90")
	if got := ShippingCost(decimal.RequireFromString("79.99"), threshold, fee); !got.Equal(fee) {
		t.Fatalf("expected fee below threshold, got %s", got)
	}
	if got := ShippingCost(decimal.RequireFromString("80.00"), threshold, fee); !got.IsZero() {
		t.Fatalf("expected free shipping at threshold, got %s", got)
	}
}

func TestCreateSessionAppliesCouponAndFreeShipping(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	session, err := f.svc.CreateSession(context.Background(), userID, f.sessionInput(2, "90.00", "save10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.Subtotal.Equal(decimal.NewFromInt(100)) || !session.ShippingCost.IsZero() || !session.Discount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected breakdown %s/%s/%s", session.Subtotal, session.ShippingCost, session.Discount)
	}
	if !session.TotalAmount.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("expected total 90, got %s", session.TotalAmount)
	}
	if session.CouponCode == nil || *session.CouponCode != "SAVE10" {
		t.Fatalf("expected coupon code recorded, got %v", session.CouponCode)
	}
	if session.Shipping.Country != "US" {
		t.Fatalf("expected normalized country, got %s", session.Shipping.Country)
	}
	if len(session.Items) != 1 || session.Items[0].VariantID != f.variants["M"].ID || session.Items[0].Name != "Hoodie" {
		t.Fatalf("unexpected item snapshot %+v", session.Items)
	}
}

func TestCreateSessionChargesShippingBelowThreshold(t *testing.T) {
	f := newFixture(t)

	session, err := f.svc.CreateSession(context.Background(), uuid.New(), f.sessionInput(1, "54.90", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.ShippingCost.Equal(decimal.RequireFromString("4.90")) {
		t.Fatalf("expected flat fee, got %s", session.ShippingCost)
	}
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.CreateSession(ctx, userID, f.sessionInput(2, "95.00", "SAVE10"))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation || typed.Details() == nil {
		t.Fatalf("expected validation error with details, got %v", err)
	}

	input := f.sessionInput(2, "100.00", "")
	input.Currency = "usd"
	if _, err := f.svc.CreateSession(ctx, userID, input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected currency validation error, got %v", err)
	}

	if _, err := f.svc.CreateSession(ctx, userID, f.sessionInput(2, "100.00", "NOPE")); err == nil || err.Error() != "VALIDATION_ERROR: coupon not found" {
		t.Fatalf("expected coupon error, got %v", err)
	}

	empty := f.sessionInput(1, "54.90", "")
	empty.Items = nil
	if _, err := f.svc.CreateSession(ctx, userID, empty); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected empty cart error, got %v", err)
	}

	if _, err := f.svc.CreateSession(ctx, uuid.Nil, f.sessionInput(1, "54.90", "")); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCreateSessionInsufficientStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateSession(context.Background(), uuid.New(), f.sessionInput(6, "300.00", ""))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	shortfalls, ok := details["shortfalls"].([]inventory.Shortfall)
	if !ok || len(shortfalls) != 1 || shortfalls[0].Available != 5 || shortfalls[0].Requested != 6 {
		t.Fatalf("unexpected shortfalls %+v", details["shortfalls"])
	}
}

func TestCreateSessionSupersedesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := f.svc.CreateSession(ctx, userID, f.sessionInput(1, "54.90", ""))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	intent, err := f.svc.CreatePaymentIntent(ctx, userID, first.ID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	second, err := f.svc.CreateSession(ctx, userID, f.sessionInput(2, "100.00", ""))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	pending, err := f.repo.ListPendingForUser(ctx, userID)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("expected only the newest session pending, got %+v", pending)
	}
	if _, err := f.svc.GetSession(ctx, userID, first.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected superseded session gone, got %v", err)
	}
	canceled := f.gateway.Canceled()
	if len(canceled) != 1 || canceled[0] != intent.IntentID {
		t.Fatalf("expected superseded intent canceled, got %v", canceled)
	}
}

func TestGetSessionIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	session, err := f.svc.CreateSession(ctx, owner, f.sessionInput(1, "54.90", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.GetSession(ctx, uuid.New(), session.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for foreign user, got %v", err)
	}
	if _, err := f.svc.GetSession(ctx, owner, uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
	got, err := f.svc.GetSession(ctx, owner, session.ID)
	if err != nil || got.ID != session.ID {
		t.Fatalf("expected owner to load session, err %v", err)
	}
}

func TestCreatePaymentIntentConcurrentCallersConverge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	session, err := f.svc.CreateSession(ctx, userID, f.sessionInput(2, "90.00", "SAVE10"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const callers = 8
	results := make([]*PaymentIntentResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.CreatePaymentIntent(ctx, userID, session.ID)
		}(i)
	}
	wg.Wait()

	winner := ""
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if winner == "" {
			winner = results[i].IntentID
		}
		if results[i].IntentID != winner || results[i].ClientSecret != winner+"_secret" {
			t.Fatalf("caller %d got %s, want %s", i, results[i].IntentID, winner)
		}
	}

	stored, err := f.svc.GetSession(ctx, userID, session.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.IntentID() != winner {
		t.Fatalf("session bound to %s, callers got %s", stored.IntentID(), winner)
	}

	created := f.gateway.Created()
	if len(created) == 0 || created[0].AmountMinor != 9000 || created[0].IdempotencyKey != "checkout_session:"+session.ID.String() {
		t.Fatalf("unexpected create params %+v", created)
	}
	if got := len(f.gateway.Canceled()); got != len(created)-1 {
		t.Fatalf("expected %d losing intents canceled, got %d", len(created)-1, got)
	}

	again, err := f.svc.CreatePaymentIntent(ctx, userID, session.ID)
	if err != nil || !again.Reused || again.IntentID != winner {
		t.Fatalf("expected reuse of %s, got %+v err %v", winner, again, err)
	}
}

func TestCreatePaymentIntentRejectsTerminalSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	session, err := f.svc.CreateSession(ctx, userID, f.sessionInput(1, "54.90", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.repo.Transition(ctx, session.ID, enums.CheckoutSessionStatusPending, enums.CheckoutSessionStatusCanceled, session.CreatedAt); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := f.svc.CreatePaymentIntent(ctx, userID, session.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if err := f.svc.DeleteSession(ctx, userID, session.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on delete, got %v", err)
	}
}

func TestCreatePaymentIntentCanceledIntentNotReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	session, err := f.svc.CreateSession(ctx, userID, f.sessionInput(1, "54.90", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first, err := f.svc.CreatePaymentIntent(ctx, userID, session.ID)
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	f.gateway.SetStatus(first.IntentID, stripe.PaymentIntentStatusCanceled)
	if _, err := f.svc.CreatePaymentIntent(ctx, userID, session.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for canceled intent, got %v", err)
	}
}

func TestDeleteSessionCancelsBoundIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	session, err := f.svc.CreateSession(ctx, userID, f.sessionInput(1, "54.90", ""))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	intent, err := f.svc.CreatePaymentIntent(ctx, userID, session.ID)
	if err != nil {
		t.Fatalf("intent: %v", err)
	}

	if err := f.svc.DeleteSession(ctx, uuid.New(), session.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for foreign user, got %v", err)
	}
	if err := f.svc.DeleteSession(ctx, userID, session.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if canceled := f.gateway.Canceled(); len(canceled) != 1 || canceled[0] != intent.IntentID {
		t.Fatalf("expected bound intent canceled, got %v", canceled)
	}
	if _, err := f.svc.GetSession(ctx, userID, session.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
}

func TestInitReportsWarningsProfileAndCouponError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	if err := f.conn.Create(&models.Profile{UserID: userID, FullName: "Grace Hopper", Country: "us"}).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	result, err := f.svc.Init(ctx, userID, InitInput{
		Items:      []ItemInput{{ProductID: f.product.ID, Size: "L", Quantity: 2}},
		CouponCode: "EXPIRED-OR-MISSING",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CouponError != "coupon not found" {
		t.Fatalf("expected coupon error message, got %q", result.CouponError)
	}
	if !result.Totals.Total.Equal(decimal.NewFromInt(100)) || !result.Totals.Discount.IsZero() {
		t.Fatalf("unexpected totals %+v", result.Totals)
	}
	if len(result.StockWarnings) != 1 || result.StockWarnings[0].Available != 1 {
		t.Fatalf("expected stock warning, got %+v", result.StockWarnings)
	}
	if result.Profile == nil || result.Profile.Country != "US" {
		t.Fatalf("expected profile prefill, got %+v", result.Profile)
	}
	if result.Currency != enums.CurrencyEUR {
		t.Fatalf("unexpected currency %s", result.Currency)
	}
}
