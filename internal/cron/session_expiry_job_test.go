package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/payments/paymentstest"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeStaleReader struct {
	sessions []models.CheckoutSession
	cutoff   time.Time
	limit    int
	err      error
}

func (f *fakeStaleReader) FindPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]models.CheckoutSession, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.sessions, f.err
}

type fakeSessionReconciler struct {
	succeeded []string
	expired   map[uuid.UUID]bool
	expireErr error
}

func (f *fakeSessionReconciler) HandleSucceeded(_ context.Context, intentID string, source enums.ReconcileSource) (*reconcile.Outcome, error) {
	if source != enums.ReconcileSourceExpirySweep {
		return nil, errors.New("unexpected source")
	}
	f.succeeded = append(f.succeeded, intentID)
	return &reconcile.Outcome{IntentID: intentID, Applied: true}, nil
}

func (f *fakeSessionReconciler) ExpireSession(_ context.Context, session *models.CheckoutSession, intentCanceled bool) (*reconcile.Outcome, error) {
	if f.expireErr != nil {
		return nil, f.expireErr
	}
	if f.expired == nil {
		f.expired = map[uuid.UUID]bool{}
	}
	f.expired[session.ID] = intentCanceled
	return &reconcile.Outcome{SessionID: session.ID, Applied: true}, nil
}

func staleSession(intentID string) models.CheckoutSession {
	session := models.CheckoutSession{ID: uuid.New(), UserID: uuid.New(), Status: enums.CheckoutSessionStatusPending}
	if intentID != "" {
		session.PaymentIntentID = &intentID
	}
	return session
}

func newSessionExpiryJob(t *testing.T, reader staleSessionReader, gateway payments.Gateway, rec sessionReconciler) *sessionExpiryJob {
	t.Helper()
	jobIface, err := NewSessionExpiryJob(SessionExpiryJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Sessions:   reader,
		Gateway:    gateway,
		Reconciler: rec,
		TTL:        6 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewSessionExpiryJob: %v", err)
	}
	job, ok := jobIface.(*sessionExpiryJob)
	if !ok {
		t.Fatalf("expected sessionExpiryJob, got %T", jobIface)
	}
	return job
}

func TestSessionExpiryJobResolvesEachIntentState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gateway := paymentstest.NewGateway()
	gateway.Put(payments.Intent{ID: "pi_paid", Status: stripe.PaymentIntentStatusSucceeded})
	gateway.Put(payments.Intent{ID: "pi_open", Status: stripe.PaymentIntentStatusRequiresPaymentMethod})
	gateway.Put(payments.Intent{ID: "pi_busy", Status: stripe.PaymentIntentStatusProcessing})
	gateway.Put(payments.Intent{ID: "pi_dead", Status: stripe.PaymentIntentStatusCanceled})

	noIntent := staleSession("")
	paid := staleSession("pi_paid")
	open := staleSession("pi_open")
	busy := staleSession("pi_busy")
	dead := staleSession("pi_dead")
	gone := staleSession("pi_gone")
	reader := &fakeStaleReader{sessions: []models.CheckoutSession{noIntent, paid, open, busy, dead, gone}}
	rec := &fakeSessionReconciler{}

	job := newSessionExpiryJob(t, reader, gateway, rec)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reader.cutoff.Equal(now.Add(-6 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", reader.cutoff)
	}
	if reader.limit != defaultExpiryBatch {
		t.Fatalf("unexpected batch size %d", reader.limit)
	}
	if len(rec.succeeded) != 1 || rec.succeeded[0] != "pi_paid" {
		t.Fatalf("expected succeeded intent reconciled, got %v", rec.succeeded)
	}

	expectations := map[uuid.UUID]bool{noIntent.ID: false, open.ID: true, dead.ID: true, gone.ID: false}
	if len(rec.expired) != len(expectations) {
		t.Fatalf("expected %d expired sessions, got %d", len(expectations), len(rec.expired))
	}
	for id, canceled := range expectations {
		got, ok := rec.expired[id]
		if !ok || got != canceled {
			t.Fatalf("session %s: expired=%v intentCanceled=%v want %v", id, ok, got, canceled)
		}
	}
	if _, ok := rec.expired[busy.ID]; ok {
		t.Fatal("processing intent must not be expired")
	}

	canceled := gateway.Canceled()
	if len(canceled) != 1 || canceled[0] != "pi_open" {
		t.Fatalf("expected only the open intent canceled, got %v", canceled)
	}
}

func TestSessionExpiryJobKeepsSessionWhenCancelFails(t *testing.T) {
	gateway := paymentstest.NewGateway()
	gateway.Put(payments.Intent{ID: "pi_open", Status: stripe.PaymentIntentStatusRequiresConfirmation})
	gateway.CancelErr = errors.New("stripe unavailable")
	open := staleSession("pi_open")
	rec := &fakeSessionReconciler{}

	job := newSessionExpiryJob(t, &fakeStaleReader{sessions: []models.CheckoutSession{open}}, gateway, rec)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(rec.expired) != 0 {
		t.Fatal("session must stay pending while its intent is live")
	}
}

func TestSessionExpiryJobCombinesErrors(t *testing.T) {
	rec := &fakeSessionReconciler{expireErr: errors.New("db down")}
	reader := &fakeStaleReader{sessions: []models.CheckoutSession{staleSession(""), staleSession("")}}

	job := newSessionExpiryJob(t, reader, paymentstest.NewGateway(), rec)
	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 combined errors, got %d", got)
	}

	reader.err = errors.New("query failed")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected query error")
	}
}

// cancelOrderReconciler records whether the intent was already canceled at
// Stripe when the session was closed.
type cancelOrderReconciler struct {
	fakeSessionReconciler
	gateway        *paymentstest.Gateway
	canceledBefore []bool
}

func (r *cancelOrderReconciler) ExpireSession(ctx context.Context, session *models.CheckoutSession, intentCanceled bool) (*reconcile.Outcome, error) {
	intent, err := r.gateway.RetrieveIntent(ctx, session.IntentID())
	if err != nil {
		return nil, err
	}
	r.canceledBefore = append(r.canceledBefore, intent.Status == stripe.PaymentIntentStatusCanceled)
	return r.fakeSessionReconciler.ExpireSession(ctx, session, intentCanceled)
}

func TestSessionExpiryJobCancelsActionableIntentBeforeClosing(t *testing.T) {
	gateway := paymentstest.NewGateway()
	gateway.Put(payments.Intent{ID: "pi_3ds", Status: stripe.PaymentIntentStatusRequiresAction})
	session := staleSession("pi_3ds")
	rec := &cancelOrderReconciler{gateway: gateway}

	job := newSessionExpiryJob(t, &fakeStaleReader{sessions: []models.CheckoutSession{session}}, gateway, rec)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.canceledBefore) != 1 || !rec.canceledBefore[0] {
		t.Fatalf("intent must be canceled before the session closes, got %v", rec.canceledBefore)
	}
	if got := rec.expired[session.ID]; !got {
		t.Fatal("expected session expired with intentCanceled")
	}
}

// reboundReconciler answers like the reconciler does when an intent was
// bound after the sweep read the session.
type reboundReconciler struct {
	fakeSessionReconciler
	boundLater string
}

func (r *reboundReconciler) ExpireSession(_ context.Context, session *models.CheckoutSession, _ bool) (*reconcile.Outcome, error) {
	return &reconcile.Outcome{SessionID: session.ID, IntentID: r.boundLater, Status: enums.CheckoutSessionStatusPending}, nil
}

func TestSessionExpiryJobSkipsSessionReboundDuringSweep(t *testing.T) {
	gateway := paymentstest.NewGateway()
	gateway.Put(payments.Intent{ID: "pi_late", Status: stripe.PaymentIntentStatusRequiresPaymentMethod})
	rec := &reboundReconciler{boundLater: "pi_late"}

	job := newSessionExpiryJob(t, &fakeStaleReader{sessions: []models.CheckoutSession{staleSession("")}}, gateway, rec)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if canceled := gateway.Canceled(); len(canceled) != 0 {
		t.Fatalf("intent bound after the read must stay live, canceled %v", canceled)
	}
}
