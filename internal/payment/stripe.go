// Package payment creates one-time payments for listings.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bryan-buckman/grainotheque/internal/model"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// ErrNothingToPay is returned for exchanges and free listings.
var ErrNothingToPay = errors.New("listing has no price to pay")

// Intent is a pending payment the browser widget confirms.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Provider creates payments scoped to a listing's exact price.
type Provider interface {
	CreateIntent(ctx context.Context, l model.Listing) (*Intent, error)
	// PublishableKey is handed to the browser widget.
	PublishableKey() string
}

// Stripe implements Provider with Stripe PaymentIntents.
type Stripe struct {
	api         *client.API
	publishable string
	currency    string
	logger      *zap.Logger
}

var _ Provider = (*Stripe)(nil)

// NewStripe creates a Stripe provider. backends may be nil to use the
// default Stripe API endpoints.
func NewStripe(secretKey, publishableKey, currency string, backends *stripe.Backends, logger *zap.Logger) *Stripe {
	if currency == "" {
		currency = "eur"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stripe{
		api:         client.New(secretKey, backends),
		publishable: publishableKey,
		currency:    currency,
		logger:      logger.Named("payment"),
	}
}

// AmountCents converts a price to the smallest currency unit.
func AmountCents(price float64) int64 {
	return int64(math.Round(price * 100))
}

// PublishableKey returns the browser-side key.
func (s *Stripe) PublishableKey() string {
	return s.publishable
}

// CreateIntent opens a PaymentIntent for the listing's price.
func (s *Stripe) CreateIntent(ctx context.Context, l model.Listing) (*Intent, error) {
	amount := AmountCents(l.Price)
	if amount <= 0 || l.IsExchange() {
		return nil, ErrNothingToPay
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(s.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(l.Title),
	}
	params.Context = ctx
	params.AddMetadata("listing_id", l.ID)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		s.logger.Warn("payment intent failed", zap.String("listing_id", l.ID), zap.Error(err))
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}
