// Package gormstore implements store.Store over a GORM connection.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/plattr/internal/store"
)

// Store addresses tables through their registered models.
type Store struct {
	db     *gorm.DB
	tables map[string]any
}

// New returns a Store for db. tables maps table names to pointers to zero models.
// db should be opened with TranslateError so unique violations surface as store.ErrConflict.
func New(db *gorm.DB, tables map[string]any) *Store {
	return &Store{db: db, tables: tables}
}

func (s *Store) Select(ctx context.Context, table string, q store.Query, dest any) error {
	tx, err := s.scope(ctx, table, q.Filter)
	if err != nil {
		return err
	}

	if q.Order != "" {
		field, desc, err := store.ParseOrder(q.Order)
		if err != nil {
			return err
		}
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: field}, Desc: desc})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	return translate(tx.Find(dest).Error)
}

func (s *Store) Insert(ctx context.Context, table string, row any) error {
	if _, ok := s.tables[table]; !ok {
		return fmt.Errorf("%w: %s", store.ErrUnknownTable, table)
	}
	return translate(s.db.WithContext(ctx).Table(table).Create(row).Error)
}

func (s *Store) Update(ctx context.Context, table string, filter store.Filter, values map[string]any) (int64, error) {
	tx, err := s.scope(ctx, table, filter)
	if err != nil {
		return 0, err
	}
	for field := range values {
		if !store.ValidField(field) {
			return 0, fmt.Errorf("%w: field %q", store.ErrInvalidQuery, field)
		}
	}

	res := tx.Updates(values)
	return res.RowsAffected, translate(res.Error)
}

func (s *Store) Delete(ctx context.Context, table string, filter store.Filter) (int64, error) {
	model, err := s.model(table)
	if err != nil {
		return 0, err
	}
	tx, err := s.scope(ctx, table, filter)
	if err != nil {
		return 0, err
	}

	res := tx.Delete(model)
	return res.RowsAffected, translate(res.Error)
}

func (s *Store) model(table string) (any, error) {
	proto, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownTable, table)
	}
	return reflect.New(reflect.TypeOf(proto).Elem()).Interface(), nil
}

func (s *Store) scope(ctx context.Context, table string, filter store.Filter) (*gorm.DB, error) {
	model, err := s.model(table)
	if err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).Model(model)
	if len(filter) == 0 {
		return tx, nil
	}
	for field := range filter {
		if !store.ValidField(field) {
			return nil, fmt.Errorf("%w: field %q", store.ErrInvalidQuery, field)
		}
	}
	return tx.Where(map[string]any(filter)), nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}
