package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 1 << 16
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (*reconcile.Outcome, error)
}

type eventVerifier interface {
	Verify(payload []byte, signatureHeader string) (*stripe.Event, error)
}

type stripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type receivedResponse struct {
	Received bool `json:"received"`
}

// StripeWebhook handles payment_intent events. Redelivered events are
// acknowledged without reaching the reconciler.
func StripeWebhook(svc StripeWebhookService, verifier eventVerifier, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook verifier unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		event, err := verifier.Verify(payload, r.Header.Get(stripeSignatureHeader))
		if err != nil {
			if errors.Is(err, payments.ErrInvalidSignature) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "verify signature"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}
		ctx = logg.WithField(ctx, "stripe_event_id", event.ID)

		claimed, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		if !claimed {
			logg.Info(ctx, "stripe event already processed")
			responses.WriteSuccess(w, receivedResponse{Received: true})
			return
		}

		outcome, err := svc.HandleEvent(ctx, event)
		if err != nil {
			if delErr := guard.Release(ctx, event.ID); delErr != nil {
				logg.Error(ctx, "release stripe event guard", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if outcome != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"checkout_session_id": outcome.SessionID.String(),
				"status":              string(outcome.Status),
				"applied":             outcome.Applied,
			})
		}
		logg.Info(ctx, "stripe event processed")
		responses.WriteSuccess(w, receivedResponse{Received: true})
	}
}
