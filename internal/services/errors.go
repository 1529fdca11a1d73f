package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/plattr/internal/session"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrAuthRequired  = errors.New("authentication required")
	ErrNotFound      = errors.New("not found")
	ErrExpired       = errors.New("expired")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrStore         = errors.New("store error")
	ErrPaymentConfig = errors.New("payment is not configured")
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// StoreError wraps a failed record-store call with the action that was attempted.
type StoreError struct {
	Action string
	Err    error
}

func (e *StoreError) Error() string { return fmt.Sprintf("%s: %v", e.Action, e.Err) }

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

func storeErr(action string, err error) error {
	return &StoreError{Action: action, Err: err}
}

// ReadPolicy decides whether read paths surface store failures or degrade to empty results.
type ReadPolicy int

const (
	ReadLenient ReadPolicy = iota
	ReadStrict
)

func ParseReadPolicy(s string) ReadPolicy {
	if s == "strict" {
		return ReadStrict
	}
	return ReadLenient
}

func currentActor(ctx context.Context, sess session.Store) (*session.Actor, error) {
	if sess == nil {
		return nil, nil
	}
	return sess.Get(ctx)
}

func requireActor(ctx context.Context, sess session.Store) (*session.Actor, error) {
	actor, err := currentActor(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if actor == nil {
		return nil, ErrAuthRequired
	}
	return actor, nil
}
