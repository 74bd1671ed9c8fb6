package coupons

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Service validates coupon codes against an order total.
type Service interface {
	Apply(ctx context.Context, code string, total, shippingCost decimal.Decimal) (*Quote, error)
}

type ServiceParams struct {
	Repo Repository
	Now  func() time.Time
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("coupon repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, now: now}, nil
}

func (s *service) Apply(ctx context.Context, code string, total, shippingCost decimal.Decimal) (*Quote, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if total.IsNegative() || shippingCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amounts must be non-negative")
	}

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load coupon")
	}
	if coupon == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon not found")
	}
	return Evaluate(*coupon, total, shippingCost, s.now().UTC())
}
