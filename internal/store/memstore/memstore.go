// Package memstore is an in-process store.Store for tests and local runs. Rows are kept in
// their JSON form so filters and sorting behave the way the REST backend does.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/plattr/internal/store"
)

// Op names a store operation passed to hooks.
type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Hook runs before every operation; a non-nil error aborts it.
type Hook func(op Op, table string) error

type Option func(*Store)

// WithUnique declares a unique constraint over fields of table.
func WithUnique(table string, fields ...string) Option {
	return func(s *Store) {
		s.unique[table] = append(s.unique[table], fields)
	}
}

// WithHook installs h.
func WithHook(h Hook) Option {
	return func(s *Store) {
		s.hook = h
	}
}

type row map[string]any

type Store struct {
	mu     sync.Mutex
	tables map[string][]row
	unique map[string][][]string
	hook   Hook
	writes int
}

func New(opts ...Option) *Store {
	s := &Store{
		tables: make(map[string][]row),
		unique: make(map[string][][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHook replaces the hook after construction.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// Writes counts successful insert, update and delete calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Count returns the number of rows in table.
func (s *Store) Count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[table])
}

func (s *Store) Select(ctx context.Context, table string, q store.Query, dest any) error {
	if err := s.before(ctx, OpSelect, table); err != nil {
		return err
	}
	filter, err := normalizeFilter(q.Filter)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]row, 0)
	for _, r := range s.tables[table] {
		if r.matches(filter) {
			matched = append(matched, r)
		}
	}

	if q.Order != "" {
		field, desc, err := store.ParseOrder(q.Order)
		if err != nil {
			return err
		}
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][field], matched[j][field])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Offset > 0 {
		matched = matched[min(q.Offset, len(matched)):]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	data, err := json.Marshal(matched)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *Store) Insert(ctx context.Context, table string, v any) error {
	if err := s.before(ctx, OpInsert, table); err != nil {
		return err
	}

	r, err := toRow(v)
	if err != nil {
		return err
	}
	if id, _ := r["id"].(string); id == "" || id == uuid.Nil.String() {
		r["id"] = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, fields := range s.unique[table] {
		for _, existing := range s.tables[table] {
			if sameOn(existing, r, fields) {
				return fmt.Errorf("%w: %s(%s)", store.ErrConflict, table, strings.Join(fields, ","))
			}
		}
	}
	s.tables[table] = append(s.tables[table], r)
	s.writes++

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) Update(ctx context.Context, table string, filter store.Filter, values map[string]any) (int64, error) {
	if err := s.before(ctx, OpUpdate, table); err != nil {
		return 0, err
	}
	f, err := normalizeFilter(filter)
	if err != nil {
		return 0, err
	}
	set, err := normalizeFilter(store.Filter(values))
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.tables[table] {
		if !r.matches(f) {
			continue
		}
		for k, v := range set {
			r[k] = v
		}
		n++
	}
	s.writes++
	return n, nil
}

func (s *Store) Delete(ctx context.Context, table string, filter store.Filter) (int64, error) {
	if err := s.before(ctx, OpDelete, table); err != nil {
		return 0, err
	}
	f, err := normalizeFilter(filter)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tables[table][:0]
	var n int64
	for _, r := range s.tables[table] {
		if r.matches(f) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.tables[table] = kept
	s.writes++
	return n, nil
}

func (s *Store) before(ctx context.Context, op Op, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		return hook(op, table)
	}
	return nil
}

func (r row) matches(filter map[string]any) bool {
	for k, want := range filter {
		if !reflect.DeepEqual(r[k], want) {
			return false
		}
	}
	return true
}

func sameOn(a, b row, fields []string) bool {
	for _, f := range fields {
		if !reflect.DeepEqual(a[f], b[f]) {
			return false
		}
	}
	return true
}

func toRow(v any) (row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var r row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("memstore: row must encode as an object: %w", err)
	}
	return r, nil
}

func normalizeFilter(filter store.Filter) (map[string]any, error) {
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		if !store.ValidField(k) {
			return nil, fmt.Errorf("%w: field %q", store.ErrInvalidQuery, k)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var n any
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

func compare(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			ta, errA := time.Parse(time.RFC3339Nano, av)
			tb, errB := time.Parse(time.RFC3339Nano, bv)
			if errA == nil && errB == nil {
				return ta.Compare(tb)
			}
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}
	if b == nil {
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
