package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/plattr/internal/models"
	"github.com/example/plattr/internal/session"
	"github.com/example/plattr/internal/store/memstore"
)

func newTestStore(opts ...memstore.Option) *memstore.Store {
	base := []memstore.Option{
		memstore.WithUnique(models.TableUsers, "phone"),
		memstore.WithUnique(models.TableCartItems, "user_id", "dish_id"),
		memstore.WithUnique(models.TableOrders, "order_number"),
	}
	return memstore.New(append(base, opts...)...)
}

func nopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func signedIn(t *testing.T, username, phone string) *session.Memory {
	t.Helper()
	sess := session.NewMemory()
	if err := sess.Set(context.Background(), session.Actor{ID: uuid.New(), Username: username, Phone: phone}); err != nil {
		t.Fatalf("set session: %v", err)
	}
	return sess
}

func actorID(t *testing.T, sess session.Store) uuid.UUID {
	t.Helper()
	actor, err := sess.Get(context.Background())
	if err != nil || actor == nil {
		t.Fatalf("expected actor, got %v (err %v)", actor, err)
	}
	return actor.ID
}

func seedDish(t *testing.T, st *memstore.Store, name, price string) models.Dish {
	t.Helper()
	dish := models.Dish{
		BaseModel:   models.BaseModel{ID: uuid.New(), CreatedAt: time.Now()},
		Name:        name,
		Price:       decimal.RequireFromString(price),
		IsAvailable: true,
	}
	if err := st.Insert(context.Background(), models.TableDishes, &dish); err != nil {
		t.Fatalf("seed dish: %v", err)
	}
	return dish
}
