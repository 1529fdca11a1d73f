package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/example/plattr/internal/models"
	"github.com/example/plattr/internal/session"
	"github.com/example/plattr/internal/store"
	"github.com/example/plattr/internal/store/memstore"
)

func TestCartRequiresActorForWrites(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	cart := NewCartService(st, nopLogger(), ReadLenient)
	anon := session.NewMemory()

	lines, err := cart.GetCart(ctx, anon)
	if err != nil || len(lines) != 0 {
		t.Fatalf("expected empty cart for anonymous caller, got %v (err %v)", lines, err)
	}

	if _, err := cart.AddToCart(ctx, anon, uuid.New(), 1); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("add: expected ErrAuthRequired, got %v", err)
	}
	if err := cart.UpdateCartItem(ctx, anon, uuid.New(), 2); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("update: expected ErrAuthRequired, got %v", err)
	}
	if err := cart.RemoveFromCart(ctx, anon, uuid.New()); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("remove: expected ErrAuthRequired, got %v", err)
	}
	if err := cart.ClearCart(ctx, nil); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("clear: expected ErrAuthRequired, got %v", err)
	}
	if w := st.Writes(); w != 0 {
		t.Fatalf("expected no writes, got %d", w)
	}
}

func TestAddToCartMergesQuantities(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	dish := seedDish(t, st, "Paneer Tikka", "250")
	cart := NewCartService(st, nopLogger(), ReadLenient)
	sess := signedIn(t, "Asha", "9876543210")

	first, err := cart.AddToCart(ctx, sess, dish.ID, 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := cart.AddToCart(ctx, sess, dish.ID, 3)
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if second.ID != first.ID || second.Quantity != 5 {
		t.Fatalf("expected merge into %s with quantity 5, got %+v", first.ID, second)
	}

	lines, err := cart.GetCart(ctx, sess)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 5 {
		t.Fatalf("expected one line of 5, got %+v", lines)
	}
	if lines[0].Dish == nil || lines[0].Dish.Name != "Paneer Tikka" {
		t.Fatalf("expected joined dish, got %+v", lines[0].Dish)
	}
}

func TestAddToCartRejectsNonPositiveQuantity(t *testing.T) {
	cart := NewCartService(newTestStore(), nopLogger(), ReadLenient)
	sess := signedIn(t, "Asha", "9876543210")

	for _, q := range []int{0, -1} {
		if _, err := cart.AddToCart(context.Background(), sess, uuid.New(), q); !errors.Is(err, ErrValidation) {
			t.Fatalf("quantity %d: expected ErrValidation, got %v", q, err)
		}
	}
}

func TestAddToCartMergesWhenLineAppearsConcurrently(t *testing.T) {
	ctx := context.Background()
	sess := signedIn(t, "Asha", "9876543210")
	userID := actorID(t, sess)
	dishID := uuid.New()

	var st *memstore.Store
	raced := false
	st = newTestStore(memstore.WithHook(func(op memstore.Op, table string) error {
		if op != memstore.OpInsert || table != models.TableCartItems || raced {
			return nil
		}
		raced = true
		other := models.CartItem{UserID: userID, DishID: dishID, Quantity: 1}
		return st.Insert(ctx, models.TableCartItems, &other)
	}))
	cart := NewCartService(st, nopLogger(), ReadLenient)

	line, err := cart.AddToCart(ctx, sess, dishID, 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if line.Quantity != 3 {
		t.Fatalf("expected merged quantity 3, got %d", line.Quantity)
	}
	if n := st.Count(models.TableCartItems); n != 1 {
		t.Fatalf("expected a single line, got %d", n)
	}
}

func TestUpdateCartItem(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	dish := seedDish(t, st, "Dal Makhani", "180")
	cart := NewCartService(st, nopLogger(), ReadLenient)
	sess := signedIn(t, "Asha", "9876543210")

	line, err := cart.AddToCart(ctx, sess, dish.ID, 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := cart.UpdateCartItem(ctx, sess, line.ID, 4); err != nil {
		t.Fatalf("update: %v", err)
	}
	lines, _ := cart.GetCart(ctx, sess)
	if len(lines) != 1 || lines[0].Quantity != 4 {
		t.Fatalf("expected quantity 4, got %+v", lines)
	}

	if err := cart.UpdateCartItem(ctx, sess, line.ID, 0); err != nil {
		t.Fatalf("update to zero: %v", err)
	}
	lines, _ = cart.GetCart(ctx, sess)
	if len(lines) != 0 {
		t.Fatalf("expected line removed, got %+v", lines)
	}

	if err := cart.UpdateCartItem(ctx, sess, line.ID, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing line, got %v", err)
	}
}

func TestCartLinesAreScopedToOwner(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	dish := seedDish(t, st, "Dal Makhani", "180")
	cart := NewCartService(st, nopLogger(), ReadLenient)
	owner := signedIn(t, "Asha", "9876543210")
	other := signedIn(t, "Ravi", "9123456780")

	line, err := cart.AddToCart(ctx, owner, dish.ID, 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := cart.UpdateCartItem(ctx, other, line.ID, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign line, got %v", err)
	}
	if err := cart.RemoveFromCart(ctx, other, line.ID); err != nil {
		t.Fatalf("remove foreign line: %v", err)
	}
	if err := cart.ClearCart(ctx, other); err != nil {
		t.Fatalf("clear other cart: %v", err)
	}

	lines, _ := cart.GetCart(ctx, owner)
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("owner cart changed: %+v", lines)
	}
	if lines, _ := cart.GetCart(ctx, other); len(lines) != 0 {
		t.Fatalf("other user sees foreign lines: %+v", lines)
	}
}

func TestRemoveAndClearCart(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	a := seedDish(t, st, "Naan", "40")
	b := seedDish(t, st, "Biryani", "320")
	c := seedDish(t, st, "Lassi", "90")
	cart := NewCartService(st, nopLogger(), ReadLenient)
	sess := signedIn(t, "Asha", "9876543210")

	line, _ := cart.AddToCart(ctx, sess, a.ID, 2)
	if _, err := cart.AddToCart(ctx, sess, b.ID, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := cart.AddToCart(ctx, sess, c.ID, 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := cart.RemoveFromCart(ctx, sess, line.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := cart.RemoveFromCart(ctx, sess, line.ID); err != nil {
		t.Fatalf("remove twice: %v", err)
	}
	lines, _ := cart.GetCart(ctx, sess)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	if err := cart.ClearCart(ctx, sess); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n := st.Count(models.TableCartItems); n != 0 {
		t.Fatalf("expected empty table, got %d", n)
	}
}

func TestGetCartLeavesUnknownDishUnjoined(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	cart := NewCartService(st, nopLogger(), ReadLenient)
	sess := signedIn(t, "Asha", "9876543210")

	if _, err := cart.AddToCart(ctx, sess, uuid.New(), 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	lines, err := cart.GetCart(ctx, sess)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(lines) != 1 || lines[0].Dish != nil {
		t.Fatalf("expected one unjoined line, got %+v", lines)
	}
	if !lines[0].UnitPrice().IsZero() {
		t.Fatalf("expected zero price, got %s", lines[0].UnitPrice())
	}
}

func TestGetCartReadPolicy(t *testing.T) {
	ctx := context.Background()
	failSelect := memstore.WithHook(func(op memstore.Op, table string) error {
		if op == memstore.OpSelect && table == models.TableCartItems {
			return errors.New("timeout")
		}
		return nil
	})
	sess := signedIn(t, "Asha", "9876543210")

	lenient := NewCartService(newTestStore(failSelect), nopLogger(), ReadLenient)
	lines, err := lenient.GetCart(ctx, sess)
	if err != nil || len(lines) != 0 {
		t.Fatalf("lenient: expected empty cart, got %v (err %v)", lines, err)
	}

	strict := NewCartService(newTestStore(failSelect), nopLogger(), ReadStrict)
	if _, err := strict.GetCart(ctx, sess); !errors.Is(err, ErrStore) {
		t.Fatalf("strict: expected ErrStore, got %v", err)
	}
}

func TestCartWriteFailuresAreStoreErrors(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(memstore.WithHook(func(op memstore.Op, table string) error {
		if op == memstore.OpInsert {
			return errors.New("connection refused")
		}
		return nil
	}))
	cart := NewCartService(st, nopLogger(), ReadLenient)
	sess := signedIn(t, "Asha", "9876543210")

	_, err := cart.AddToCart(ctx, sess, uuid.New(), 1)
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Action != "failed to add item to cart" {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if errors.Is(err, store.ErrConflict) {
		t.Fatal("unexpected conflict")
	}
}
