package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/plattr/internal/models"
	"github.com/example/plattr/internal/session"
	"github.com/example/plattr/internal/store"
)

const (
	orderNumberAttempts = 3
	notifyTimeout       = 10 * time.Second
)

// Pricing holds the charges added on top of the cart subtotal.
type Pricing struct {
	DeliveryFee decimal.Decimal
	TaxRate     decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{
		DeliveryFee: decimal.NewFromInt(40),
		TaxRate:     decimal.NewFromFloat(0.05),
	}
}

// Totals is the money breakdown of a cart snapshot.
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

// Totals prices lines. Tax is rounded to a whole unit before it is added; nothing else is rounded.
func (p Pricing) Totals(lines []CartLine) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	tax := subtotal.Mul(p.TaxRate).Round(0)
	return Totals{
		Subtotal:    subtotal,
		DeliveryFee: p.DeliveryFee,
		Tax:         tax,
		Total:       subtotal.Add(p.DeliveryFee).Add(tax),
	}
}

// OrderNotification is handed to the notifier after an order is placed.
type OrderNotification struct {
	Order    models.Order
	Lines    []CartLine
	Actor    session.Actor
	Currency string
}

// OrderNotifier tells staff about new orders.
type OrderNotifier interface {
	NotifyNewOrder(ctx context.Context, n OrderNotification) error
}

// OrderRequest carries the checkout form.
type OrderRequest struct {
	AddressID    uuid.UUID `json:"address_id"`
	DeliveryDate string    `json:"delivery_date"`
	DeliveryTime string    `json:"delivery_time"`
}

// OrderOptions tunes OrderService. Zero values fall back to defaults.
type OrderOptions struct {
	Pricing  *Pricing
	Numbers  OrderNumberAllocator
	Notifier OrderNotifier
	Currency string
	Policy   ReadPolicy
	Now      func() time.Time
}

// OrderService turns a signed-in user's cart into a numbered order.
type OrderService struct {
	store    store.Store
	cart     *CartService
	numbers  OrderNumberAllocator
	notifier OrderNotifier
	pricing  Pricing
	currency string
	policy   ReadPolicy
	log      *zap.SugaredLogger
	now      func() time.Time

	notifications sync.WaitGroup
}

func NewOrderService(st store.Store, cart *CartService, log *zap.SugaredLogger, opts OrderOptions) *OrderService {
	s := &OrderService{
		store:    st,
		cart:     cart,
		numbers:  opts.Numbers,
		notifier: opts.Notifier,
		pricing:  DefaultPricing(),
		currency: opts.Currency,
		policy:   opts.Policy,
		log:      log,
		now:      opts.Now,
	}
	if opts.Pricing != nil {
		s.pricing = *opts.Pricing
	}
	if s.numbers == nil {
		s.numbers = NewStoreOrderNumbers(st)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Pricing returns the charges applied to orders.
func (s *OrderService) Pricing() Pricing {
	return s.pricing
}

// CreateOrder places an order for the signed-in user's cart and then clears the cart.
// A failure after the order row is written leaves that row in place.
func (s *OrderService) CreateOrder(ctx context.Context, sess session.Store, req OrderRequest) (*models.Order, error) {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	lines, err := s.cart.snapshot(ctx, actor.ID)
	if err != nil {
		s.log.Errorw("order cart snapshot failed", "user_id", actor.ID, "error", err)
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	totals := s.pricing.Totals(lines)

	order, err := s.insertOrder(ctx, actor.ID, req, totals)
	if err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	for i, line := range lines {
		items[i] = models.OrderItem{
			BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: order.CreatedAt},
			OrderID:   order.ID,
			DishID:    line.DishID,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice(),
		}
		g.Go(func() error {
			return s.store.Insert(gctx, models.TableOrderItems, &items[i])
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Errorw("order items insert failed", "order_id", order.ID, "order_number", order.OrderNumber, "error", err)
		return nil, storeErr("failed to create order", err)
	}
	order.Items = items

	if err := s.cart.clear(ctx, actor.ID); err != nil {
		s.log.Warnw("cart not cleared after order", "order_id", order.ID, "user_id", actor.ID, "error", err)
	}

	s.log.Infow("order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"user_id", actor.ID,
		"total", order.Total,
	)

	s.notify(ctx, OrderNotification{Order: *order, Lines: lines, Actor: *actor, Currency: s.currency})
	return order, nil
}

// insertOrder allocates a number and writes the order, retrying when the number was taken.
func (s *OrderService) insertOrder(ctx context.Context, userID uuid.UUID, req OrderRequest, totals Totals) (*models.Order, error) {
	var lastErr error
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		number, err := s.numbers.Next(ctx)
		if err != nil {
			s.log.Errorw("order number allocation failed", "user_id", userID, "error", err)
			return nil, storeErr("failed to create order", err)
		}

		order := &models.Order{
			BaseModel:    models.BaseModel{ID: uuid.New(), CreatedAt: s.now()},
			OrderNumber:  number,
			UserID:       userID,
			AddressID:    req.AddressID,
			Subtotal:     totals.Subtotal,
			DeliveryFee:  totals.DeliveryFee,
			Tax:          totals.Tax,
			Total:        totals.Total,
			DeliveryDate: req.DeliveryDate,
			DeliveryTime: req.DeliveryTime,
			Status:       models.OrderStatusPending,
		}
		err = s.store.Insert(ctx, models.TableOrders, order)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			s.log.Errorw("order insert failed", "user_id", userID, "order_number", number, "error", err)
			return nil, storeErr("failed to create order", err)
		}

		s.log.Warnw("order number taken, retrying", "order_number", number, "attempt", attempt)
		lastErr = err

		if r, ok := s.numbers.(orderNumberResyncer); ok {
			if err := r.Resync(ctx); err != nil {
				s.log.Warnw("order number resync failed", "error", err)
			}
		}
	}
	return nil, storeErr("failed to create order", lastErr)
}

func (s *OrderService) notify(ctx context.Context, n OrderNotification) {
	if s.notifier == nil {
		return
	}

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyNewOrder(nctx, n); err != nil {
			s.log.Warnw("order notification failed", "order_id", n.Order.ID, "error", err)
		}
	}()
}

// Wait blocks until pending order notifications finish.
func (s *OrderService) Wait() {
	s.notifications.Wait()
}

// GetOrders lists the signed-in user's orders, newest first.
func (s *OrderService) GetOrders(ctx context.Context, sess session.Store) ([]models.Order, error) {
	actor, err := currentActor(ctx, sess)
	if err == nil && actor == nil {
		return []models.Order{}, nil
	}

	var orders []models.Order
	if err == nil {
		orders, err = store.All[models.Order](ctx, s.store, models.TableOrders, store.Query{
			Filter: store.Filter{"user_id": actor.ID},
			Order:  "created_at.desc",
		})
	}
	if err != nil {
		if s.policy == ReadStrict {
			return nil, storeErr("failed to fetch orders", err)
		}
		s.log.Warnw("orders read degraded to empty", "error", err)
		return []models.Order{}, nil
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// OrderDetails is an order with its lines and delivery address. Address is nil unless
// the address belongs to the order's owner.
type OrderDetails struct {
	models.Order
	Address *models.Address `json:"address"`
}

// GetOrderDetails returns one of the signed-in user's orders. Orders of other users are not found.
func (s *OrderService) GetOrderDetails(ctx context.Context, sess session.Store, orderID uuid.UUID) (*OrderDetails, error) {
	actor, err := requireActor(ctx, sess)
	if err != nil {
		return nil, err
	}

	order, err := store.First[models.Order](ctx, s.store, models.TableOrders, store.Query{
		Filter: store.Filter{"id": orderID, "user_id": actor.ID},
	})
	if err != nil {
		s.log.Errorw("order lookup failed", "order_id", orderID, "error", err)
		return nil, storeErr("failed to fetch order details", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}

	var (
		items   []models.OrderItem
		address *models.Address
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = store.All[models.OrderItem](gctx, s.store, models.TableOrderItems, store.Query{
			Filter: store.Filter{"order_id": order.ID},
		})
		return err
	})
	g.Go(func() error {
		var err error
		address, err = store.First[models.Address](gctx, s.store, models.TableAddresses, store.Query{
			Filter: store.Filter{"id": order.AddressID, "user_id": actor.ID},
		})
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Errorw("order details lookup failed", "order_id", orderID, "error", err)
		return nil, storeErr("failed to fetch order details", err)
	}

	if items == nil {
		items = []models.OrderItem{}
	}
	order.Items = items
	return &OrderDetails{Order: *order, Address: address}, nil
}
