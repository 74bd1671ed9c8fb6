package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const (
	MetadataCheckoutSessionID = "checkout_session_id"
	MetadataUserID            = "user_id"
)

// ErrIntentNotFound is returned when Stripe has no intent with the id.
var ErrIntentNotFound = errors.New("payment intent not found")

// Intent is the processor-side payment record checkout cares about.
type Intent struct {
	ID           string
	ClientSecret string
	Status       stripe.PaymentIntentStatus
	AmountMinor  int64
	Currency     string
	Metadata     map[string]string
}

// Succeeded reports whether the intent captured funds.
func (i *Intent) Succeeded() bool {
	return i != nil && i.Status == stripe.PaymentIntentStatusSucceeded
}

type CreateIntentParams struct {
	AmountMinor    int64
	Currency       enums.Currency
	Metadata       map[string]string
	IdempotencyKey string
}

// Gateway is the payment processor surface used by checkout and reconciliation.
type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) error
}

// intentAPI is the subset of stripe-go used here, split out for tests.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type packageIntentAPI struct{}

func (packageIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

func (packageIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Get(id, params)
}

func (packageIntentAPI) Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return paymentintent.Cancel(id, params)
}

// StripeGateway implements Gateway on top of stripe-go.
type StripeGateway struct {
	api intentAPI
}

// NewStripeGateway wraps the configured Stripe client.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return &StripeGateway{api: packageIntentAPI{}}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, in CreateIntentParams) (*Intent, error) {
	if in.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !in.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.AmountMinor),
		Currency: stripe.String(in.Currency.Lower()),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for key, value := range in.Metadata {
		params.AddMetadata(key, value)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	pi, err := g.api.New(params)
	if err != nil {
		return nil, providerError(err, "create payment intent")
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.Get(id, params)
	if err != nil {
		return nil, providerError(err, "retrieve payment intent")
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := g.api.Cancel(id, params); err != nil {
		return providerError(err, "cancel payment intent")
	}
	return nil
}

func providerError(err error, action string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, fmt.Errorf("%w: %v", ErrIntentNotFound, err), action)
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, action)
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return nil
	}
	metadata := make(map[string]string, len(pi.Metadata))
	for k, v := range pi.Metadata {
		metadata[k] = v
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       pi.Status,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     metadata,
	}
}
