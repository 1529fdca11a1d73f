package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/plattr/internal/models"
	"github.com/example/plattr/internal/store"
)

// OrderNumberAllocator hands out the next human-facing order number.
type OrderNumberAllocator interface {
	Next(ctx context.Context) (int64, error)
}

// orderNumberResyncer is an allocator that can catch up with numbers already in the store.
type orderNumberResyncer interface {
	Resync(ctx context.Context) error
}

// StoreOrderNumbers reads the highest stored number and adds one. Two callers can observe the
// same maximum; the unique index on order_number rejects the loser, which then retries.
type StoreOrderNumbers struct {
	store store.Store
}

func NewStoreOrderNumbers(st store.Store) *StoreOrderNumbers {
	return &StoreOrderNumbers{store: st}
}

func (a *StoreOrderNumbers) Next(ctx context.Context) (int64, error) {
	last, err := lastOrderNumber(ctx, a.store)
	if err != nil {
		return 0, err
	}
	if last == 0 {
		return models.FirstOrderNumber, nil
	}
	return last + 1, nil
}

const orderNumberKey = "orders:number"

// raiseCounterScript sets the counter to ARGV[1] unless it is already at or above it.
var raiseCounterScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])

if current < floor then
	redis.call('SET', KEYS[1], floor)
	return floor
end

return current
`)

// RedisOrderNumbers allocates with INCR on a counter seeded from the store's highest number.
// A number is spent as soon as it is handed out, so an order insert that fails afterwards
// leaves a gap. Use StoreOrderNumbers when numbers must stay dense.
type RedisOrderNumbers struct {
	client *redis.Client
	store  store.Store
	key    string
}

func NewRedisOrderNumbers(client *redis.Client, st store.Store) *RedisOrderNumbers {
	return &RedisOrderNumbers{client: client, store: st, key: orderNumberKey}
}

func (a *RedisOrderNumbers) Next(ctx context.Context) (int64, error) {
	exists, err := a.client.Exists(ctx, a.key).Result()
	if err != nil {
		return 0, fmt.Errorf("order number counter: %w", err)
	}
	if exists == 0 {
		last, err := lastOrderNumber(ctx, a.store)
		if err != nil {
			return 0, err
		}
		seed := max(last, models.FirstOrderNumber-1)
		if err := a.client.SetNX(ctx, a.key, seed, 0).Err(); err != nil {
			return 0, fmt.Errorf("seed order number counter: %w", err)
		}
	}

	n, err := a.client.Incr(ctx, a.key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment order number counter: %w", err)
	}
	return n, nil
}

// Resync raises the counter to the store's highest number when it has fallen behind.
func (a *RedisOrderNumbers) Resync(ctx context.Context) error {
	last, err := lastOrderNumber(ctx, a.store)
	if err != nil {
		return err
	}
	seed := max(last, models.FirstOrderNumber-1)
	if err := raiseCounterScript.Run(ctx, a.client, []string{a.key}, seed).Err(); err != nil {
		return fmt.Errorf("resync order number counter: %w", err)
	}
	return nil
}

// lastOrderNumber returns the highest stored order number, or 0 for an empty history.
func lastOrderNumber(ctx context.Context, st store.Store) (int64, error) {
	last, err := store.First[models.Order](ctx, st, models.TableOrders, store.Query{
		Order: "order_number.desc",
	})
	if err != nil {
		return 0, fmt.Errorf("read last order number: %w", err)
	}
	if last == nil {
		return 0, nil
	}
	return last.OrderNumber, nil
}
