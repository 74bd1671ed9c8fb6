package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultSessionTTL    = 24 * time.Hour
	defaultExpiryBatch   = 200
	sessionExpiryJobName = "checkout-session-expiry"
)

type staleSessionReader interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CheckoutSession, error)
}

type sessionReconciler interface {
	HandleSucceeded(ctx context.Context, intentID string, source enums.ReconcileSource) (*reconcile.Outcome, error)
	ExpireSession(ctx context.Context, session *models.CheckoutSession, intentCanceled bool) (*reconcile.Outcome, error)
}

// SessionExpiryJobParams configure the stale checkout session sweep.
type SessionExpiryJobParams struct {
	Logger     *logger.Logger
	Sessions   staleSessionReader
	Gateway    payments.Gateway
	Reconciler sessionReconciler
	TTL        time.Duration
	BatchSize  int
}

// NewSessionExpiryJob builds the job that closes pending sessions older than the TTL.
func NewSessionExpiryJob(params SessionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("checkout session reader required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &sessionExpiryJob{
		logg:       params.Logger,
		sessions:   params.Sessions,
		gateway:    params.Gateway,
		reconciler: params.Reconciler,
		ttl:        ttl,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type sessionExpiryJob struct {
	logg       *logger.Logger
	sessions   staleSessionReader
	gateway    payments.Gateway
	reconciler sessionReconciler
	ttl        time.Duration
	batch      int
	now        func() time.Time
}

type expiryTally struct {
	expired  int
	paid     int
	inFlight int
	skipped  int
}

func (j *sessionExpiryJob) Name() string { return sessionExpiryJobName }

func (j *sessionExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.sessions.FindPendingBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale checkout sessions: %w", err)
	}

	var (
		tally expiryTally
		errs  []error
	)
	for i := range stale {
		session := stale[i]
		if err := j.expire(ctx, &session, &tally); err != nil {
			errs = append(errs, fmt.Errorf("checkout session %s: %w", session.ID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"found":     len(stale),
		"expired":   tally.expired,
		"paid":      tally.paid,
		"in_flight": tally.inFlight,
		"skipped":   tally.skipped,
		"failed":    len(errs),
	})
	j.logg.Info(logCtx, "checkout session expiry sweep complete")
	return multierr.Combine(errs...)
}

// expire resolves one stale session. An intent that already succeeded is
// reconciled as a payment; an intent still processing is left alone. Any
// other intent is canceled at Stripe before the session is closed, so a
// closed session never has a chargeable intent.
func (j *sessionExpiryJob) expire(ctx context.Context, session *models.CheckoutSession, tally *expiryTally) error {
	intentID := session.IntentID()
	intentCanceled := false

	if intentID != "" {
		intent, err := j.gateway.RetrieveIntent(ctx, intentID)
		switch {
		case errors.Is(err, payments.ErrIntentNotFound):
		case err != nil:
			return err
		case intent.Status == stripe.PaymentIntentStatusSucceeded:
			outcome, err := j.reconciler.HandleSucceeded(ctx, intentID, enums.ReconcileSourceExpirySweep)
			if err != nil {
				return err
			}
			if outcome.Applied {
				tally.paid++
			} else {
				tally.skipped++
			}
			return nil
		case intent.Status == stripe.PaymentIntentStatusProcessing:
			tally.inFlight++
			return nil
		case intent.Status == stripe.PaymentIntentStatusCanceled:
			intentCanceled = true
		default:
			if err := j.gateway.CancelIntent(ctx, intentID); err != nil {
				return fmt.Errorf("cancel payment intent: %w", err)
			}
			intentCanceled = true
		}
	}

	outcome, err := j.reconciler.ExpireSession(ctx, session, intentCanceled)
	if err != nil {
		return err
	}
	if outcome.Applied {
		tally.expired++
	} else {
		tally.skipped++
	}
	return nil
}
