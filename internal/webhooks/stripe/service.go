package stripewebhook

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type reconciler interface {
	HandleSucceeded(ctx context.Context, intentID string, source enums.ReconcileSource) (*reconcile.Outcome, error)
	HandleFailed(ctx context.Context, intentID string, status enums.CheckoutSessionStatus, source enums.ReconcileSource) (*reconcile.Outcome, error)
}

type ServiceParams struct {
	Reconciler reconciler
	Logger     *logger.Logger
}

// Service routes verified payment_intent.* events into the reconciler.
type Service struct {
	reconciler reconciler
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, errors.New("reconciler required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Service{reconciler: params.Reconciler, logg: params.Logger}, nil
}

// HandleEvent applies one event. Unhandled event types return a nil outcome
// and no error so Stripe stops retrying them.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (*reconcile.Outcome, error) {
	if event == nil || event.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	var status enums.CheckoutSessionStatus
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		status = enums.CheckoutSessionStatusPaid
	case stripe.EventTypePaymentIntentPaymentFailed:
		status = enums.CheckoutSessionStatusFailed
	case stripe.EventTypePaymentIntentCanceled:
		status = enums.CheckoutSessionStatusCanceled
	default:
		s.logg.Debug(ctx, "stripe event ignored")
		return nil, nil
	}

	intent, err := payments.IntentFromEvent(event)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}

	var outcome *reconcile.Outcome
	if status == enums.CheckoutSessionStatusPaid {
		outcome, err = s.reconciler.HandleSucceeded(ctx, intent.ID, enums.ReconcileSourceWebhook)
	} else {
		outcome, err = s.reconciler.HandleFailed(ctx, intent.ID, status, enums.ReconcileSourceWebhook)
	}
	if err != nil {
		return nil, err
	}

	if sessionID := intent.Metadata[payments.MetadataCheckoutSessionID]; sessionID != "" && outcome != nil &&
		outcome.Applied && outcome.SessionID.String() != sessionID {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"metadata_session_id": sessionID,
			"bound_session_id":    outcome.SessionID.String(),
		}), "payment intent metadata does not match bound checkout session")
	}
	return outcome, nil
}
