package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const testSigningSecret = "whsec_test"

func TestStripeWebhook_SuccessAndIdempotent(t *testing.T) {
	payload, header := buildSignedEvent(t, testSigningSecret)
	service := &fakeStripeWebhookService{}
	handler := newHandler(t, service)

	rec := postEvent(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	assertReceived(t, rec)
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}
	if service.lastType != stripe.EventTypePaymentIntentSucceeded {
		t.Fatalf("unexpected event type %s", service.lastType)
	}

	rec = postEvent(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d (%s)", rec.Code, rec.Body.String())
	}
	assertReceived(t, rec)
	if service.calls != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", service.calls)
	}
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	payload, _ := buildSignedEvent(t, testSigningSecret)
	_, otherHeader := buildSignedEvent(t, "whsec_other")
	service := &fakeStripeWebhookService{}
	handler := newHandler(t, service)

	for name, header := range map[string]string{"forged": "t=1,v1=invalid", "wrong secret": otherHeader, "missing": ""} {
		rec := postEvent(handler, payload, header)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 for invalid signature, got %d", name, rec.Code)
		}
		if code := errorCode(t, rec); code != string(pkgerrors.CodeInvalidSignature) {
			t.Fatalf("%s: unexpected code %s", name, code)
		}
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestStripeWebhook_FailureReleasesGuard(t *testing.T) {
	payload, header := buildSignedEvent(t, testSigningSecret)
	service := &fakeStripeWebhookService{err: pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")}
	handler := newHandler(t, service)

	rec := postEvent(handler, payload, header)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	service.err = pkgerrors.New(pkgerrors.CodeInternal, "boom")
	rec = postEvent(handler, payload, header)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	service.err = nil
	rec = postEvent(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected redelivery to succeed, got %d", rec.Code)
	}
	if service.calls != 3 {
		t.Fatalf("expected each failed delivery to be retried, got %d calls", service.calls)
	}
}

func newHandler(t *testing.T, service StripeWebhookService) http.HandlerFunc {
	t.Helper()
	guard, err := stripewebhook.NewEventGuard(newInMemoryStore(), time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	verifier, err := payments.NewWebhookVerifier(testSigningSecret)
	if err != nil {
		t.Fatalf("verifier setup: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard})
	return StripeWebhook(service, verifier, guard, logg)
}

func postEvent(handler http.Handler, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func assertReceived(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	var body struct {
		Data receivedResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Data.Received {
		t.Fatalf("expected received=true, got %s", rec.Body.String())
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Error.Code
}

func buildSignedEvent(t *testing.T, secret string) ([]byte, string) {
	t.Helper()
	intent := map[string]any{
		"id":       "pi_" + uuid.NewString(),
		"object":   "payment_intent",
		"status":   "succeeded",
		"amount":   9000,
		"currency": "eur",
		"metadata": map[string]string{
			"checkout_session_id": uuid.NewString(),
			"user_id":             uuid.NewString(),
		},
	}
	event := map[string]any{
		"id":     "evt_fixed",
		"object": "event",
		"type":   string(stripe.EventTypePaymentIntentSucceeded),
		"data":   map[string]any{"object": intent},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return payload, signed.Header
}

type fakeStripeWebhookService struct {
	calls    int
	lastType stripe.EventType
	err      error
}

func (f *fakeStripeWebhookService) HandleEvent(_ context.Context, event *stripe.Event) (*reconcile.Outcome, error) {
	f.calls++
	f.lastType = event.Type
	if f.err != nil {
		return nil, f.err
	}
	return &reconcile.Outcome{SessionID: uuid.New(), Status: enums.CheckoutSessionStatusPaid, Applied: true}, nil
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{
		data: make(map[string]string),
	}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("sf:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
