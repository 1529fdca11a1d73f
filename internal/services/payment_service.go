package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/plattr/internal/payment"
	"github.com/example/plattr/internal/session"
)

// Quote is what the signed-in user would pay for the current cart.
type Quote struct {
	Totals
	Currency  string `json:"currency"`
	ItemCount int    `json:"item_count"`
}

// PaymentIntent is a client secret the card widget confirms against.
type PaymentIntent struct {
	ClientSecret string `json:"client_secret"`
	Quote
}

// PaymentResult reports a confirmation outcome. Error is the processor's message.
type PaymentResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PaymentService prices carts and confirms card payments. It never holds a secret key.
type PaymentService struct {
	cart     *CartService
	gateway  payment.Gateway
	pricing  Pricing
	currency string
	log      *zap.SugaredLogger
}

// NewPaymentService builds the service. A nil gateway leaves payments unconfigured.
func NewPaymentService(cart *CartService, gateway payment.Gateway, pricing Pricing, currency string, log *zap.SugaredLogger) *PaymentService {
	return &PaymentService{
		cart:     cart,
		gateway:  gateway,
		pricing:  pricing,
		currency: currency,
		log:      log,
	}
}

// Quote prices the signed-in user's cart the same way CreateOrder does.
func (s *PaymentService) Quote(ctx context.Context, sess session.Store) (*Quote, error) {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	lines, err := s.cart.snapshot(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return &Quote{Totals: s.pricing.Totals(lines), Currency: s.currency, ItemCount: count}, nil
}

// CreatePaymentIntent checks the cart and then fails: issuing client secrets needs the
// processor's secret key, which only a trusted backend holds.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, sess session.Store) (*PaymentIntent, error) {
	quote, err := s.Quote(ctx, sess)
	if err != nil {
		return nil, err
	}
	s.log.Warnw("payment intent requested without a secret-key backend", "total", quote.Total)
	return nil, fmt.Errorf("payment intent creation requires a trusted backend: %w", ErrPaymentConfig)
}

// ProcessPayment confirms paymentMethodID against clientSecret. Declines and transport
// failures come back as an unsuccessful result; only missing configuration is an error.
func (s *PaymentService) ProcessPayment(ctx context.Context, clientSecret, paymentMethodID string) (*PaymentResult, error) {
	if s.gateway == nil {
		return nil, fmt.Errorf("payment processor: %w", ErrPaymentConfig)
	}
	if clientSecret == "" {
		return nil, fmt.Errorf("client secret missing: %w", ErrPaymentConfig)
	}
	if paymentMethodID == "" {
		return nil, invalid("payment_method", "payment_method is required")
	}

	if err := s.gateway.ConfirmCardPayment(ctx, clientSecret, paymentMethodID); err != nil {
		var decline *payment.DeclineError
		if errors.As(err, &decline) {
			s.log.Infow("payment declined", "code", decline.Code, "decline_code", decline.DeclineCode)
		} else {
			s.log.Errorw("payment confirmation failed", "error", err)
		}
		return &PaymentResult{Success: false, Error: err.Error()}, nil
	}

	return &PaymentResult{Success: true}, nil
}
