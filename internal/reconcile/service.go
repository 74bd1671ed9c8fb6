package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Outcome labels recorded on reconcile_signals_total.
const (
	outcomeApplied       = "applied"
	outcomeDuplicate     = "duplicate"
	outcomeRecovered     = "recovered"
	outcomeNotFound      = "not_found"
	outcomeNotSucceeded  = "not_succeeded"
	outcomeTerminalClash = "terminal_conflict"
	outcomeRebound       = "intent_rebound"
	outcomeError         = "error"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type materializer interface {
	Materialize(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, source enums.ReconcileSource) (*orders.Result, error)
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Outcome describes what a payment signal did to its checkout session.
type Outcome struct {
	SessionID  uuid.UUID
	UserID     uuid.UUID
	IntentID   string
	Status     enums.CheckoutSessionStatus
	OrderID    *uuid.UUID
	Shortfalls []inventory.Shortfall
	// Applied is set only for the caller that won the pending transition.
	Applied bool
	// Duplicate is set when the session had already left pending.
	Duplicate bool
}

// Confirmation is the Path A answer returned to the client.
type Confirmation struct {
	Valid   bool
	Status  stripe.PaymentIntentStatus
	Outcome *Outcome
}

// Service moves checkout sessions out of pending in response to payment
// signals. Client polls, webhooks and the expiry sweep all go through it.
type Service interface {
	HandleSucceeded(ctx context.Context, intentID string, source enums.ReconcileSource) (*Outcome, error)
	HandleFailed(ctx context.Context, intentID string, status enums.CheckoutSessionStatus, source enums.ReconcileSource) (*Outcome, error)
	ConfirmIntent(ctx context.Context, intentID string) (*Confirmation, error)
	ExpireSession(ctx context.Context, session *models.CheckoutSession, intentCanceled bool) (*Outcome, error)
}

type ServiceParams struct {
	Sessions     checkout.Repository
	Materializer materializer
	Carts        cart.Repository
	Gateway      payments.Gateway
	Outbox       outboxEmitter
	TxRunner     txRunner
	Metrics      *metrics.ReconcileMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	sessions     checkout.Repository
	materializer materializer
	carts        cart.Repository
	gateway      payments.Gateway
	outbox       outboxEmitter
	tx           txRunner
	metrics      *metrics.ReconcileMetrics
	logg         *logger.Logger
	now          func() time.Time
}

// NewService builds the reconciler.
func NewService(params ServiceParams) (Service, error) {
	if params.Sessions == nil {
		return nil, errors.New("checkout repository required")
	}
	if params.Materializer == nil {
		return nil, errors.New("order materializer required")
	}
	if params.Carts == nil {
		return nil, errors.New("cart repository required")
	}
	if params.Gateway == nil {
		return nil, errors.New("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	if params.TxRunner == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		sessions:     params.Sessions,
		materializer: params.Materializer,
		carts:        params.Carts,
		gateway:      params.Gateway,
		outbox:       params.Outbox,
		tx:           params.TxRunner,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          now,
	}, nil
}

// HandleSucceeded applies a succeeded payment. The session transition and the
// order materialization commit together; only the caller that moves the
// session out of pending creates the order. Everyone else gets Duplicate.
func (s *service) HandleSucceeded(ctx context.Context, intentID string, source enums.ReconcileSource) (*Outcome, error) {
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"payment_intent_id": intentID, "source": source.String()})

	var (
		outcome *Outcome
		label   string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := s.sessions.WithTx(tx)
		session, err := sessions.FindByPaymentIntentID(ctx, intentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
		}
		if session == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no checkout session is bound to this payment intent")
		}
		outcome = outcomeFor(session)

		now := s.now().UTC()
		won, err := sessions.Transition(ctx, session.ID, enums.CheckoutSessionStatusPending, enums.CheckoutSessionStatusPaid, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition checkout session")
		}
		if !won {
			return s.settleDuplicate(ctx, tx, session, source, outcome, &label)
		}

		session.Status = enums.CheckoutSessionStatusPaid
		session.PaidAt = &now
		result, err := s.materializer.Materialize(ctx, tx, session, source)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "materialize order")
		}
		outcome.Status = enums.CheckoutSessionStatusPaid
		outcome.Applied = true
		outcome.OrderID = &result.Order.ID
		outcome.Shortfalls = result.Shortfalls
		label = outcomeApplied
		return nil
	})
	if err != nil {
		s.record(ctx, source, labelForError(err), err)
		return nil, err
	}
	s.record(ctx, source, label, nil)

	if outcome.Applied {
		s.clearCart(ctx, outcome.UserID)
	}
	return outcome, nil
}

// settleDuplicate handles a succeeded signal for a session that already left
// pending. A paid session without an order is materialized here.
func (s *service) settleDuplicate(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, source enums.ReconcileSource, outcome *Outcome, label *string) error {
	current, err := s.sessions.WithTx(tx).FindByPaymentIntentID(ctx, session.IntentID())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload checkout session")
	}
	if current == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no checkout session is bound to this payment intent")
	}
	*outcome = *outcomeFor(current)
	outcome.Duplicate = true

	switch {
	case current.Status == enums.CheckoutSessionStatusPaid && !current.Materialized():
		result, err := s.materializer.Materialize(ctx, tx, current, source)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "materialize order")
		}
		outcome.OrderID = &result.Order.ID
		outcome.Shortfalls = result.Shortfalls
		*label = outcomeRecovered
		s.logg.Warn(s.logg.WithCheckout(ctx, current.ID.String(), current.IntentID()), "paid session had no order, materialized")
	case current.Status == enums.CheckoutSessionStatusPaid:
		*label = outcomeDuplicate
		s.logg.Info(s.logg.WithCheckout(ctx, current.ID.String(), current.IntentID()), "duplicate payment success signal ignored")
	default:
		*label = outcomeTerminalClash
		s.logg.Error(
			s.logg.WithFields(s.logg.WithCheckout(ctx, current.ID.String(), current.IntentID()), map[string]any{"status": current.Status.String()}),
			"payment succeeded for a closed checkout session; manual review required",
			fmt.Errorf("session %s is %s", current.ID, current.Status),
		)
	}
	return nil
}

// HandleFailed closes the session as failed or canceled. An unknown intent is
// acknowledged: there is nothing to close.
func (s *service) HandleFailed(ctx context.Context, intentID string, status enums.CheckoutSessionStatus, source enums.ReconcileSource) (*Outcome, error) {
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	if status != enums.CheckoutSessionStatusFailed && status != enums.CheckoutSessionStatusCanceled {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported failure status %q", status)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"payment_intent_id": intentID, "source": source.String()})

	session, err := s.sessions.FindByPaymentIntentID(ctx, intentID)
	if err != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
		s.record(ctx, source, outcomeError, err)
		return nil, err
	}
	if session == nil {
		s.logg.Warn(ctx, "payment failure signal for unknown payment intent")
		s.record(ctx, source, outcomeNotFound, nil)
		return &Outcome{IntentID: intentID}, nil
	}

	won, err := s.sessions.Transition(ctx, session.ID, enums.CheckoutSessionStatusPending, status, s.now().UTC())
	if err != nil {
		err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition checkout session")
		s.record(ctx, source, outcomeError, err)
		return nil, err
	}
	outcome := outcomeFor(session)
	if !won {
		outcome.Duplicate = true
		s.record(ctx, source, outcomeDuplicate, nil)
		return outcome, nil
	}
	outcome.Status = status
	outcome.Applied = true
	s.logg.Info(s.logg.WithField(s.logg.WithCheckout(ctx, session.ID.String(), intentID), "status", status.String()), "checkout session closed")
	s.record(ctx, source, outcomeApplied, nil)
	return outcome, nil
}

// ConfirmIntent is the client return path: it checks the intent at Stripe and,
// when it succeeded, reconciles exactly as the webhook would. A succeeded
// intent with no session answers not valid; the webhook keeps retrying it.
func (s *service) ConfirmIntent(ctx context.Context, intentID string) (*Confirmation, error) {
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_intent is required")
	}
	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, payments.ErrIntentNotFound) {
			s.record(ctx, enums.ReconcileSourceClientPoll, outcomeNotFound, nil)
			return &Confirmation{Valid: false}, nil
		}
		s.record(ctx, enums.ReconcileSourceClientPoll, outcomeError, err)
		return nil, err
	}
	if !intent.Succeeded() {
		s.record(ctx, enums.ReconcileSourceClientPoll, outcomeNotSucceeded, nil)
		return &Confirmation{Valid: false, Status: intent.Status}, nil
	}

	outcome, err := s.HandleSucceeded(ctx, intent.ID, enums.ReconcileSourceClientPoll)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.logg.Warn(s.logg.WithField(ctx, "payment_intent_id", intent.ID), "payment succeeded with no checkout session; manual review required")
		return &Confirmation{Valid: false, Status: intent.Status}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Confirmation{Valid: true, Status: intent.Status, Outcome: outcome}, nil
}

// ExpireSession cancels a stale pending session and queues
// checkout_session_expired in the same transaction. The session must still
// carry the intent the caller resolved; if another intent was bound since,
// nothing changes and the next sweep decides again.
func (s *service) ExpireSession(ctx context.Context, session *models.CheckoutSession, intentCanceled bool) (*Outcome, error) {
	if session == nil {
		return nil, errors.New("checkout session required")
	}
	source := enums.ReconcileSourceExpirySweep
	outcome := outcomeFor(session)
	now := s.now().UTC()
	label := outcomeApplied
	ctx = s.logg.WithCheckout(ctx, session.ID.String(), session.IntentID())

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := s.sessions.WithTx(tx)
		won, err := sessions.TransitionIfIntent(ctx, session.ID, enums.CheckoutSessionStatusPending, enums.CheckoutSessionStatusCanceled, now, session.IntentID())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition checkout session")
		}
		if !won {
			current, err := sessions.FindForUser(ctx, session.ID, session.UserID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload checkout session")
			}
			if current != nil && current.Status == enums.CheckoutSessionStatusPending {
				*outcome = *outcomeFor(current)
				label = outcomeRebound
				s.logg.Info(s.logg.WithField(ctx, "bound_payment_intent_id", current.IntentID()), "payment intent bound after expiry check, session kept")
				return nil
			}
			outcome.Duplicate = true
			label = outcomeDuplicate
			return nil
		}
		outcome.Status = enums.CheckoutSessionStatusCanceled
		outcome.Applied = true
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutSessionExpired,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   session.ID,
			Actor:         &outbox.ActorRef{UserID: session.UserID, Source: source.String()},
			Version:       1,
			OccurredAt:    now,
			Data: payloads.CheckoutSessionExpiredEvent{
				CheckoutSessionID: session.ID,
				UserID:            session.UserID,
				PaymentIntentID:   session.IntentID(),
				IntentCanceled:    intentCanceled,
				ExpiredAt:         now,
			},
		})
	})
	if err != nil {
		s.record(ctx, source, outcomeError, err)
		return nil, err
	}
	s.record(ctx, source, label, nil)
	return outcome, nil
}

func (s *service) clearCart(ctx context.Context, userID uuid.UUID) {
	if _, err := s.carts.ClearForUser(ctx, userID); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"user_id": userID.String(),
			"error":   err.Error(),
		}), "failed to clear cart after payment")
	}
}

func (s *service) record(ctx context.Context, source enums.ReconcileSource, label string, err error) {
	s.metrics.IncSignal(source.String(), label)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "outcome", label), "payment signal processing failed", err)
	}
}

func outcomeFor(session *models.CheckoutSession) *Outcome {
	return &Outcome{
		SessionID: session.ID,
		UserID:    session.UserID,
		IntentID:  session.IntentID(),
		Status:    session.Status,
		OrderID:   session.OrderID,
	}
}

func labelForError(err error) string {
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return outcomeNotFound
	}
	return outcomeError
}
