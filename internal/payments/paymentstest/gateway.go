// Package paymentstest provides an in-memory payments.Gateway for tests.
package paymentstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Gateway mints a distinct intent per CreateIntent call, so bind races are
// exercised even when callers share an idempotency key.
type Gateway struct {
	mu        sync.Mutex
	seq       int
	intents   map[string]*payments.Intent
	canceled  []string
	created   []payments.CreateIntentParams
	CreateErr error
	CancelErr error
}

func NewGateway() *Gateway {
	return &Gateway{intents: map[string]*payments.Intent{}}
}

func (g *Gateway) CreateIntent(_ context.Context, params payments.CreateIntentParams) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	g.seq++
	id := fmt.Sprintf("pi_test_%d", g.seq)
	intent := &payments.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		AmountMinor:  params.AmountMinor,
		Currency:     params.Currency.Lower(),
		Metadata:     params.Metadata,
	}
	g.intents[id] = intent
	g.created = append(g.created, params)
	copied := *intent
	return &copied, nil
}

func (g *Gateway) RetrieveIntent(_ context.Context, id string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, payments.ErrIntentNotFound, "retrieve payment intent")
	}
	copied := *intent
	return &copied, nil
}

func (g *Gateway) CancelIntent(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CancelErr != nil {
		return g.CancelErr
	}
	if intent, ok := g.intents[id]; ok {
		intent.Status = stripe.PaymentIntentStatusCanceled
	}
	g.canceled = append(g.canceled, id)
	return nil
}

// Put registers or replaces an intent.
func (g *Gateway) Put(intent payments.Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	copied := intent
	g.intents[intent.ID] = &copied
}

// SetStatus moves an existing intent to status.
func (g *Gateway) SetStatus(id string, status stripe.PaymentIntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[id]; ok {
		intent.Status = status
	}
}

func (g *Gateway) Canceled() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.canceled...)
}

func (g *Gateway) Created() []payments.CreateIntentParams {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payments.CreateIntentParams(nil), g.created...)
}
