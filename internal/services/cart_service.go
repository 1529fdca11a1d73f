package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/plattr/internal/models"
	"github.com/example/plattr/internal/session"
	"github.com/example/plattr/internal/store"
)

const dishLookupConcurrency = 8

// CartLine is a cart item joined with its dish. Dish is nil when the lookup failed.
type CartLine struct {
	ID       uuid.UUID    `json:"id"`
	DishID   uuid.UUID    `json:"dish_id"`
	Quantity int          `json:"quantity"`
	Dish     *models.Dish `json:"dish,omitempty"`
}

// UnitPrice is the joined dish price, zero when the dish is unknown.
func (l CartLine) UnitPrice() decimal.Decimal {
	if l.Dish == nil {
		return decimal.Zero
	}
	return l.Dish.Price
}

// CartService keeps one line per user and dish.
type CartService struct {
	store  store.Store
	log    *zap.SugaredLogger
	policy ReadPolicy
	now    func() time.Time
}

func NewCartService(st store.Store, log *zap.SugaredLogger, policy ReadPolicy) *CartService {
	return &CartService{store: st, log: log, policy: policy, now: time.Now}
}

// GetCart returns the signed-in user's cart. Without a session the cart is empty.
func (s *CartService) GetCart(ctx context.Context, sess session.Store) ([]CartLine, error) {
	actor, err := currentActor(ctx, sess)
	if err == nil && actor == nil {
		return []CartLine{}, nil
	}

	var lines []CartLine
	if err == nil {
		lines, err = s.snapshot(ctx, actor.ID)
	}
	if err != nil {
		if s.policy == ReadStrict {
			return nil, err
		}
		s.log.Warnw("cart read degraded to empty", "error", err)
		return []CartLine{}, nil
	}
	return lines, nil
}

// AddToCart adds quantity of dish to the cart, merging into an existing line.
func (s *CartService) AddToCart(ctx context.Context, sess session.Store, dishID uuid.UUID, quantity int) (*CartLine, error) {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, invalid("quantity", "quantity must be at least 1")
	}

	// A conflicting insert means another request created the line first; merge into it.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := store.First[models.CartItem](ctx, s.store, models.TableCartItems, store.Query{
			Filter: store.Filter{"user_id": actor.ID, "dish_id": dishID},
		})
		if err != nil {
			s.log.Errorw("cart lookup failed", "user_id", actor.ID, "dish_id", dishID, "error", err)
			return nil, storeErr("failed to add item to cart", err)
		}

		if existing != nil {
			merged := existing.Quantity + quantity
			if _, err := s.store.Update(ctx, models.TableCartItems,
				store.Filter{"id": existing.ID},
				map[string]any{"quantity": merged}); err != nil {
				s.log.Errorw("cart merge failed", "line_id", existing.ID, "error", err)
				return nil, storeErr("failed to add item to cart", err)
			}
			return &CartLine{ID: existing.ID, DishID: dishID, Quantity: merged}, nil
		}

		item := models.CartItem{
			BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: s.now()},
			UserID:    actor.ID,
			DishID:    dishID,
			Quantity:  quantity,
		}
		err = s.store.Insert(ctx, models.TableCartItems, &item)
		if errors.Is(err, store.ErrConflict) {
			s.log.Infow("cart line created concurrently, merging", "user_id", actor.ID, "dish_id", dishID)
			continue
		}
		if err != nil {
			s.log.Errorw("cart insert failed", "user_id", actor.ID, "dish_id", dishID, "error", err)
			return nil, storeErr("failed to add item to cart", err)
		}
		return &CartLine{ID: item.ID, DishID: dishID, Quantity: quantity}, nil
	}

	return nil, storeErr("failed to add item to cart", store.ErrConflict)
}

// UpdateCartItem replaces the line quantity. Zero or less removes the line.
func (s *CartService) UpdateCartItem(ctx context.Context, sess session.Store, lineID uuid.UUID, quantity int) error {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return err
	}

	filter := store.Filter{"id": lineID, "user_id": actor.ID}
	if quantity <= 0 {
		if _, err := s.store.Delete(ctx, models.TableCartItems, filter); err != nil {
			s.log.Errorw("cart line delete failed", "line_id", lineID, "error", err)
			return storeErr("failed to update cart", err)
		}
		return nil
	}

	n, err := s.store.Update(ctx, models.TableCartItems, filter, map[string]any{"quantity": quantity})
	if err != nil {
		s.log.Errorw("cart line update failed", "line_id", lineID, "error", err)
		return storeErr("failed to update cart", err)
	}
	if n == 0 {
		return fmt.Errorf("cart item %s: %w", lineID, ErrNotFound)
	}
	return nil
}

// RemoveFromCart deletes a line. Removing a missing line is not an error.
func (s *CartService) RemoveFromCart(ctx context.Context, sess session.Store, lineID uuid.UUID) error {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return err
	}

	if _, err := s.store.Delete(ctx, models.TableCartItems, store.Filter{"id": lineID, "user_id": actor.ID}); err != nil {
		s.log.Errorw("cart line remove failed", "line_id", lineID, "error", err)
		return storeErr("failed to remove item from cart", err)
	}
	return nil
}

// ClearCart deletes every line of the signed-in user.
func (s *CartService) ClearCart(ctx context.Context, sess session.Store) error {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return err
	}
	return s.clear(ctx, actor.ID)
}

func (s *CartService) clear(ctx context.Context, userID uuid.UUID) error {
	items, err := store.All[models.CartItem](ctx, s.store, models.TableCartItems, store.Query{
		Filter: store.Filter{"user_id": userID},
	})
	if err != nil {
		return storeErr("failed to clear cart", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, item := range items {
		g.Go(func() error {
			_, err := s.store.Delete(gctx, models.TableCartItems, store.Filter{"id": item.ID})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Errorw("cart clear failed", "user_id", userID, "error", err)
		return storeErr("failed to clear cart", err)
	}
	return nil
}

// snapshot reads the cart once and joins each line with its dish.
// Dish lookup failures leave the line without a dish instead of failing the read.
func (s *CartService) snapshot(ctx context.Context, userID uuid.UUID) ([]CartLine, error) {
	items, err := store.All[models.CartItem](ctx, s.store, models.TableCartItems, store.Query{
		Filter: store.Filter{"user_id": userID},
		Order:  "created_at.asc",
	})
	if err != nil {
		return nil, storeErr("failed to fetch cart", err)
	}

	lines := make([]CartLine, len(items))
	var g errgroup.Group
	g.SetLimit(dishLookupConcurrency)
	for i, item := range items {
		lines[i] = CartLine{ID: item.ID, DishID: item.DishID, Quantity: item.Quantity}
		g.Go(func() error {
			dish, err := store.First[models.Dish](ctx, s.store, models.TableDishes, store.Query{
				Filter: store.Filter{"id": item.DishID},
			})
			if err != nil {
				s.log.Warnw("dish lookup failed", "dish_id", item.DishID, "error", err)
				return nil
			}
			lines[i].Dish = dish
			return nil
		})
	}
	_ = g.Wait()

	return lines, nil
}
