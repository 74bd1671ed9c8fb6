package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/profiles"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	supersedeSavepoint     = "supersede_pending"
	pendingSessionIndex    = "ux_checkout_sessions_user_pending"
	intentIdempotencyScope = "checkout_session:"
	createSessionAttempts  = 2
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockChecker interface {
	Check(ctx context.Context, requests []inventory.Request) ([]inventory.Shortfall, error)
}

// Service orchestrates checkout from cart pricing to a bound payment intent.
type Service interface {
	Init(ctx context.Context, userID uuid.UUID, input InitInput) (*InitResult, error)
	CreateSession(ctx context.Context, userID uuid.UUID, input CreateSessionInput) (*models.CheckoutSession, error)
	GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.CheckoutSession, error)
	DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error
	CreatePaymentIntent(ctx context.Context, userID, sessionID uuid.UUID) (*PaymentIntentResult, error)
}

type InitInput struct {
	Items      []ItemInput
	CouponCode string
}

type InitResult struct {
	Items         types.SessionItems
	Totals        Totals
	Currency      enums.Currency
	StockWarnings []inventory.Shortfall
	Profile       *types.ShippingInfo
	CouponError   string
}

type CreateSessionInput struct {
	Items       []ItemInput
	Shipping    types.ShippingInfo
	TotalAmount decimal.Decimal
	Currency    string
	CouponCode  string
}

type PaymentIntentResult struct {
	SessionID     uuid.UUID
	IntentID      string
	ClientSecret  string
	AmountMinor   int64
	Currency      enums.Currency
	Reused        bool
	RaceRecovered bool
}

type ServiceParams struct {
	Repo     Repository
	Products products.Repository
	Stock    stockChecker
	Coupons  coupons.Service
	Profiles profiles.Repository
	Gateway  payments.Gateway
	TxRunner txRunner
	Config   config.CheckoutConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo      Repository
	products  products.Repository
	stock     stockChecker
	coupons   coupons.Service
	profiles  profiles.Repository
	gateway   payments.Gateway
	tx        txRunner
	currency  enums.Currency
	threshold decimal.Decimal
	fee       decimal.Decimal
	ttl       time.Duration
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("checkout repository required")
	}
	if params.Products == nil {
		return nil, errors.New("product repository required")
	}
	if params.Stock == nil {
		return nil, errors.New("stock checker required")
	}
	if params.Coupons == nil {
		return nil, errors.New("coupon service required")
	}
	if params.Profiles == nil {
		return nil, errors.New("profile repository required")
	}
	if params.Gateway == nil {
		return nil, errors.New("payment gateway required")
	}
	if params.TxRunner == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	currency, err := enums.ParseCurrency(params.Config.Currency)
	if err != nil {
		return nil, fmt.Errorf("checkout currency: %w", err)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		products:  params.Products,
		stock:     params.Stock,
		coupons:   params.Coupons,
		profiles:  params.Profiles,
		gateway:   params.Gateway,
		tx:        params.TxRunner,
		currency:  currency,
		threshold: params.Config.Threshold(),
		fee:       params.Config.Fee(),
		ttl:       params.Config.SessionTTL,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Init prices the cart for display. It never writes; an invalid coupon is
// reported in CouponError instead of failing the request.
func (s *service) Init(ctx context.Context, userID uuid.UUID, input InitInput) (*InitResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}

	lines, totals, err := s.quote(ctx, input.Items, input.CouponCode)
	result := &InitResult{Currency: s.currency}
	if err != nil {
		var couponErr *couponError
		if !errors.As(err, &couponErr) {
			return nil, err
		}
		result.CouponError = couponErr.Message()
		lines, totals, err = s.quote(ctx, input.Items, "")
		if err != nil {
			return nil, err
		}
	}
	result.Items = lines
	result.Totals = totals

	warnings, err := s.stock.Check(ctx, stockRequests(lines))
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stock spot-check failed")
	} else {
		result.StockWarnings = warnings
	}

	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "profile lookup failed")
	} else {
		result.Profile = profiles.ShippingPrefill(profile)
	}
	return result, nil
}

// CreateSession recomputes totals, pre-checks stock and stores a new pending
// session, superseding any pending session the user already had.
func (s *service) CreateSession(ctx context.Context, userID uuid.UUID, input CreateSessionInput) (*models.CheckoutSession, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}

	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil || currency != s.currency {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "currency must be %s", s.currency)
	}

	lines, totals, err := s.quote(ctx, input.Items, input.CouponCode)
	if err != nil {
		var couponErr *couponError
		if errors.As(err, &couponErr) {
			return nil, couponErr.cause
		}
		return nil, err
	}
	if !totals.Total.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be greater than zero")
	}
	if !input.TotalAmount.Round(2).Equal(totals.Total) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total amount does not match server total").WithDetails(map[string]string{
			"expected": totals.Total.StringFixed(2),
			"received": input.TotalAmount.StringFixed(2),
		})
	}

	shortfalls, err := s.stock.Check(ctx, stockRequests(lines))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check stock")
	}
	if len(shortfalls) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "some items are out of stock").WithDetails(map[string]any{
			"shortfalls": shortfalls,
		})
	}

	shipping := input.Shipping
	shipping.Country = types.NormalizeCountry(shipping.Country)

	var couponCode *string
	if totals.CouponCode != "" {
		code := totals.CouponCode
		couponCode = &code
	}

	var (
		session    *models.CheckoutSession
		superseded []models.CheckoutSession
	)
	for attempt := 1; attempt <= createSessionAttempts; attempt++ {
		session = &models.CheckoutSession{
			UserID:       userID,
			Items:        lines,
			Shipping:     shipping,
			Subtotal:     totals.Subtotal,
			ShippingCost: totals.ShippingCost,
			Discount:     totals.Discount,
			CouponCode:   couponCode,
			TotalAmount:  totals.Total,
			Currency:     currency,
			Status:       enums.CheckoutSessionStatusPending,
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			superseded = s.supersedePending(ctx, tx, repo, userID)
			return repo.Create(ctx, session)
		})
		if err == nil || !dbpkg.IsUniqueViolation(err, pendingSessionIndex) {
			break
		}
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "concurrent checkout session create, retrying")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create checkout session")
	}

	logCtx := s.logg.WithCheckout(ctx, session.ID.String(), "")
	s.logg.Info(logCtx, "checkout session created")
	for _, old := range superseded {
		s.cancelIntentBestEffort(logCtx, old.IntentID(), "superseded")
	}
	return session, nil
}

func (s *service) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	session, err := s.repo.FindForUser(ctx, sessionID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	return session, nil
}

func (s *service) DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	session, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if session.Status != enums.CheckoutSessionStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending checkout sessions can be deleted").WithDetails(map[string]string{
			"status": session.Status.String(),
		})
	}

	deleted, err := s.repo.Delete(ctx, sessionID, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete checkout session")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session is no longer pending")
	}

	logCtx := s.logg.WithCheckout(ctx, session.ID.String(), session.IntentID())
	s.logg.Info(logCtx, "checkout session deleted")
	s.cancelIntentBestEffort(logCtx, session.IntentID(), "session_deleted")
	return nil
}

// CreatePaymentIntent returns the session's intent, creating and binding one
// when none exists. Concurrent callers converge on the first bound intent.
func (s *service) CreatePaymentIntent(ctx context.Context, userID, sessionID uuid.UUID) (*PaymentIntentResult, error) {
	session, err := s.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != enums.CheckoutSessionStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session is not pending").WithDetails(map[string]string{
			"status": session.Status.String(),
		})
	}

	if bound := session.IntentID(); bound != "" {
		return s.reuseIntent(ctx, session, bound, false)
	}
	// the expiry sweep may already be closing a session this old
	if s.ttl > 0 && s.now().Sub(session.CreatedAt) >= s.ttl {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session expired; start a new checkout")
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.CreateIntentParams{
		AmountMinor: types.MinorUnits(session.TotalAmount),
		Currency:    session.Currency,
		Metadata: map[string]string{
			payments.MetadataCheckoutSessionID: session.ID.String(),
			payments.MetadataUserID:            userID.String(),
		},
		IdempotencyKey: intentIdempotencyScope + session.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	bound, winner, err := s.repo.BindPaymentIntent(ctx, session.ID, userID, intent.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.cancelIntentBestEffort(ctx, intent.ID, "session_vanished")
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "bind payment intent")
	}
	if bound {
		s.logg.Info(s.logg.WithCheckout(ctx, session.ID.String(), intent.ID), "payment intent bound")
		return &PaymentIntentResult{
			SessionID:    session.ID,
			IntentID:     intent.ID,
			ClientSecret: intent.ClientSecret,
			AmountMinor:  intent.AmountMinor,
			Currency:     session.Currency,
		}, nil
	}

	logCtx := s.logg.WithCheckout(ctx, session.ID.String(), winner)
	s.logg.Warn(s.logg.WithField(logCtx, "lost_intent_id", intent.ID), "payment intent bind race recovered")
	if winner == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent could not be bound")
	}
	if winner == intent.ID {
		return &PaymentIntentResult{
			SessionID:     session.ID,
			IntentID:      intent.ID,
			ClientSecret:  intent.ClientSecret,
			AmountMinor:   intent.AmountMinor,
			Currency:      session.Currency,
			Reused:        true,
			RaceRecovered: true,
		}, nil
	}
	s.cancelIntentBestEffort(logCtx, intent.ID, "bind_race_lost")
	return s.reuseIntent(ctx, session, winner, true)
}

func (s *service) reuseIntent(ctx context.Context, session *models.CheckoutSession, intentID string, raceRecovered bool) (*PaymentIntentResult, error) {
	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status == stripe.PaymentIntentStatusCanceled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent was canceled; start a new checkout")
	}
	return &PaymentIntentResult{
		SessionID:     session.ID,
		IntentID:      intent.ID,
		ClientSecret:  intent.ClientSecret,
		AmountMinor:   intent.AmountMinor,
		Currency:      session.Currency,
		Reused:        true,
		RaceRecovered: raceRecovered,
	}, nil
}

// supersedePending deletes the user's pending sessions inside tx. Failures are
// logged and rolled back to a savepoint so the new session can still be created.
func (s *service) supersedePending(ctx context.Context, tx *gorm.DB, repo Repository, userID uuid.UUID) []models.CheckoutSession {
	if err := tx.SavePoint(supersedeSavepoint).Error; err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stale checkout session cleanup skipped")
		return nil
	}
	pending, err := repo.ListPendingForUser(ctx, userID)
	if err == nil && len(pending) > 0 {
		_, err = repo.DeletePendingForUser(ctx, userID)
	}
	if err != nil {
		if rbErr := tx.RollbackTo(supersedeSavepoint).Error; rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to delete stale checkout sessions")
		return nil
	}
	return pending
}

func (s *service) cancelIntentBestEffort(ctx context.Context, intentID, reason string) {
	if intentID == "" {
		return
	}
	if err := s.gateway.CancelIntent(ctx, intentID); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"payment_intent_id": intentID,
			"reason":            reason,
			"error":             err.Error(),
		})
		s.logg.Warn(logCtx, "payment intent cancel failed")
	}
}

// quote prices items and applies the optional coupon.
func (s *service) quote(ctx context.Context, items []ItemInput, couponCode string) (types.SessionItems, Totals, error) {
	lines, subtotal, err := priceItems(ctx, s.products, items)
	if err != nil {
		return nil, Totals{}, err
	}
	totals := Totals{
		Subtotal:     subtotal,
		ShippingCost: ShippingCost(subtotal, s.threshold, s.fee),
		Discount:     decimal.Zero,
	}
	totals.Total = totals.Subtotal.Add(totals.ShippingCost)

	couponCode = strings.TrimSpace(couponCode)
	if couponCode == "" {
		return lines, totals, nil
	}
	quote, err := s.coupons.Apply(ctx, couponCode, totals.Subtotal, totals.ShippingCost)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			return nil, Totals{}, &couponError{cause: err}
		}
		return nil, Totals{}, err
	}
	totals.Discount = quote.Discount
	totals.Total = quote.FinalTotal
	totals.CouponCode = quote.Code
	return lines, totals, nil
}

// couponError marks a coupon rejection so Init can degrade instead of failing.
type couponError struct {
	cause error
}

func (e *couponError) Error() string { return e.cause.Error() }
func (e *couponError) Unwrap() error { return e.cause }

func (e *couponError) Message() string {
	if typed := pkgerrors.As(e.cause); typed != nil {
		return typed.Message()
	}
	return e.cause.Error()
}

func stockRequests(lines types.SessionItems) []inventory.Request {
	requests := make([]inventory.Request, 0, len(lines))
	for _, line := range lines {
		requests = append(requests, inventory.Request{VariantID: line.VariantID, Quantity: line.Quantity})
	}
	return requests
}
