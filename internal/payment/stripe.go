// Package payment confirms card payments with the payment processor.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrInvalidClientSecret is returned for client secrets that do not name a payment intent.
var ErrInvalidClientSecret = errors.New("payment: malformed client secret")

// Gateway confirms a card payment method against a client secret issued by a trusted backend.
type Gateway interface {
	ConfirmCardPayment(ctx context.Context, clientSecret, paymentMethodID string) error
}

// DeclineError is a payment the processor refused. Message is safe to show to the customer.
type DeclineError struct {
	Status      int    `json:"-"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

func (e *DeclineError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment declined: status %d", e.Status)
	}
	return e.Message
}

// StripeGateway calls the Stripe confirm endpoint with a publishable key, as browser SDKs do.
type StripeGateway struct {
	key     string
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	log     *zap.SugaredLogger
}

func NewStripeGateway(publishableKey, baseURL string, log *zap.SugaredLogger) *StripeGateway {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}

	st := gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			var decline *DeclineError
			return err == nil || errors.As(err, &decline)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &StripeGateway{
		key:     publishableKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 20 * time.Second},
		cb:      gobreaker.NewCircuitBreaker(st),
		log:     log,
	}
}

type stripeErrorBody struct {
	Error *DeclineError `json:"error"`
}

type paymentIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ConfirmCardPayment confirms the intent behind clientSecret with paymentMethodID.
// A processor refusal is returned as *DeclineError.
func (g *StripeGateway) ConfirmCardPayment(ctx context.Context, clientSecret, paymentMethodID string) error {
	intentID, _, found := strings.Cut(clientSecret, "_secret_")
	if !found || intentID == "" {
		return ErrInvalidClientSecret
	}

	form := url.Values{}
	form.Set("client_secret", clientSecret)
	form.Set("payment_method", paymentMethodID)
	endpoint := fmt.Sprintf("%s/v1/payment_intents/%s/confirm", g.baseURL, url.PathEscape(intentID))

	out, err := g.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+g.key)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := g.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("stripe: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			var payload stripeErrorBody
			if err := json.Unmarshal(body, &payload); err != nil || payload.Error == nil {
				return nil, &DeclineError{Status: resp.StatusCode}
			}
			payload.Error.Status = resp.StatusCode
			return nil, payload.Error
		}

		var intent paymentIntent
		if err := json.Unmarshal(body, &intent); err != nil {
			return nil, fmt.Errorf("stripe: decode intent: %w", err)
		}
		return &intent, nil
	})
	if err != nil {
		g.log.Infow("payment confirmation failed", "intent_id", intentID, "error", err)
		return err
	}

	intent := out.(*paymentIntent)
	g.log.Infow("payment confirmed", "intent_id", intent.ID, "status", intent.Status)
	return nil
}
