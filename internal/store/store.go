// Package store describes the record store the storefront persists to: tables addressed by
// name, rows filtered by field equality, optionally sorted and limited.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrConflict is returned when a write violates a unique constraint.
	ErrConflict = errors.New("store: unique constraint violated")
	// ErrUnknownTable is returned for tables the backend was not configured with.
	ErrUnknownTable = errors.New("store: unknown table")
	// ErrInvalidQuery is returned for malformed sort keys or field names.
	ErrInvalidQuery = errors.New("store: invalid query")
)

// Filter matches rows whose fields equal every given value.
type Filter map[string]any

// Query narrows a Select.
type Query struct {
	Filter Filter
	// Order is "field.asc" or "field.desc"; empty means backend order.
	Order string
	// Limit caps the row count when positive.
	Limit int
	// Offset skips that many rows before Limit applies.
	Offset int
}

// Store is implemented by every persistence backend.
//
// Select decodes matching rows into dest, which must point to a slice. Insert writes row
// (a pointer to a model) and may refresh it with server-assigned columns. Update and Delete
// report the number of affected rows.
type Store interface {
	Select(ctx context.Context, table string, q Query, dest any) error
	Insert(ctx context.Context, table string, row any) error
	Update(ctx context.Context, table string, filter Filter, values map[string]any) (int64, error)
	Delete(ctx context.Context, table string, filter Filter) (int64, error)
}

// All returns every row of table matching q.
func All[T any](ctx context.Context, s Store, table string, q Query) ([]T, error) {
	var rows []T
	if err := s.Select(ctx, table, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// First returns the first row matching q, or nil when there is none.
func First[T any](ctx context.Context, s Store, table string, q Query) (*T, error) {
	q.Limit = 1
	rows, err := All[T](ctx, s, table, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

var fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidField reports whether name is safe to use as a column name.
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// ParseOrder splits "field.desc" into its column and direction.
func ParseOrder(order string) (field string, desc bool, err error) {
	field, dir, found := strings.Cut(order, ".")
	if !found {
		dir = "asc"
	}
	if !ValidField(field) {
		return "", false, fmt.Errorf("%w: sort field %q", ErrInvalidQuery, field)
	}
	switch dir {
	case "asc":
		return field, false, nil
	case "desc":
		return field, true, nil
	default:
		return "", false, fmt.Errorf("%w: sort direction %q", ErrInvalidQuery, dir)
	}
}
