package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/plattr/internal/handlers"
	"github.com/example/plattr/internal/middleware"
	"github.com/example/plattr/internal/models"
	"github.com/example/plattr/internal/services"
	"github.com/example/plattr/internal/session"
	"github.com/example/plattr/internal/store/memstore"
)

type testApp struct {
	app      *fiber.App
	store    *memstore.Store
	sessions *session.MemoryProvider
	now      time.Time
}

func newTestApp(t *testing.T, otpLimiter, verifyLimiter middleware.Limiter) *testApp {
	t.Helper()
	log := zap.NewNop().Sugar()
	st := memstore.New(
		memstore.WithUnique(models.TableUsers, "phone"),
		memstore.WithUnique(models.TableCartItems, "user_id", "dish_id"),
		memstore.WithUnique(models.TableOrders, "order_number"),
	)
	ta := &testApp{store: st, sessions: session.NewMemoryProvider(time.Hour), now: time.Now()}
	clock := func() time.Time { return ta.now }

	auth := services.NewAuthService(st, services.LogCodeSender{Log: log}, log, services.AuthOptions{ExposeCodes: true, Now: clock})
	cart := services.NewCartService(st, log, services.ReadLenient)
	orders := services.NewOrderService(st, cart, log, services.OrderOptions{Currency: "INR", Now: clock})
	payments := services.NewPaymentService(cart, nil, orders.Pricing(), "INR", log)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	Register(app, Deps{
		Store:         st,
		Sessions:      ta.sessions,
		JWTSecret:     "test-secret",
		TokenTTL:      time.Hour,
		OTPLimiter:    otpLimiter,
		VerifyLimiter: verifyLimiter,
		Auth:          auth,
		Cart:          cart,
		Orders:        orders,
		Payments:      payments,
		Addresses:     services.NewAddressService(st, log),
		Log:           log,
	})
	ta.app = app
	return ta
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func (a *testApp) seedDish(t *testing.T, name, price string) uuid.UUID {
	t.Helper()
	dish := models.Dish{
		BaseModel:   models.BaseModel{ID: uuid.New(), CreatedAt: time.Now()},
		Name:        name,
		Price:       decimal.RequireFromString(price),
		IsAvailable: true,
	}
	if err := a.store.Insert(context.Background(), models.TableDishes, &dish); err != nil {
		t.Fatalf("seed dish: %v", err)
	}
	return dish.ID
}

func (a *testApp) signIn(t *testing.T, phone, username string) string {
	t.Helper()
	code, sent := a.do(t, "POST", "/api/auth/send-otp", "", fiber.Map{"phone": phone})
	if code != fiber.StatusOK {
		t.Fatalf("send-otp: %d %v", code, sent)
	}
	otp := sent["data"].(map[string]any)["otp"].(string)

	code, verified := a.do(t, "POST", "/api/auth/verify-otp", "", fiber.Map{"phone": phone, "otp": otp, "username": username})
	if code != fiber.StatusOK {
		t.Fatalf("verify-otp: %d %v", code, verified)
	}
	return verified["token"].(string)
}

func money(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	s, ok := v.(string)
	if !ok {
		t.Fatalf("expected decimal string, got %T %v", v, v)
	}
	return decimal.RequireFromString(s)
}

func TestCheckoutFlow(t *testing.T) {
	a := newTestApp(t, nil, nil)
	dosa := a.seedDish(t, "Masala Dosa", "100")
	lassi := a.seedDish(t, "Lassi", "50")

	token := a.signIn(t, "9876543210", "Asha")

	code, me := a.do(t, "GET", "/api/auth/me", token, nil)
	if code != fiber.StatusOK || me["data"].(map[string]any)["username"] != "Asha" {
		t.Fatalf("me: %d %v", code, me)
	}

	if code, body := a.do(t, "POST", "/api/cart", token, fiber.Map{"dish_id": dosa.String(), "quantity": 2}); code != fiber.StatusCreated {
		t.Fatalf("add dosa: %d %v", code, body)
	}
	if code, body := a.do(t, "POST", "/api/cart", token, fiber.Map{"dish_id": lassi.String()}); code != fiber.StatusCreated {
		t.Fatalf("add lassi: %d %v", code, body)
	}

	code, cart := a.do(t, "GET", "/api/cart", token, nil)
	if code != fiber.StatusOK || len(cart["data"].([]any)) != 2 {
		t.Fatalf("cart: %d %v", code, cart)
	}

	code, quote := a.do(t, "POST", "/api/payments/quote", token, nil)
	if code != fiber.StatusOK {
		t.Fatalf("quote: %d %v", code, quote)
	}
	if total := money(t, quote["data"].(map[string]any)["total"]); !total.Equal(decimal.NewFromInt(303)) {
		t.Fatalf("expected quote total 303, got %s", total)
	}

	code, created := a.do(t, "POST", "/api/orders", token, fiber.Map{
		"address_id":    uuid.NewString(),
		"delivery_date": "2024-03-02",
		"delivery_time": "19:30",
	})
	if code != fiber.StatusCreated {
		t.Fatalf("create order: %d %v", code, created)
	}
	order := created["data"].(map[string]any)
	if order["order_number"].(float64) != float64(models.FirstOrderNumber) {
		t.Fatalf("unexpected order number %v", order["order_number"])
	}
	if total := money(t, order["total"]); !total.Equal(decimal.NewFromInt(303)) {
		t.Fatalf("expected total 303, got %s", total)
	}

	code, cart = a.do(t, "GET", "/api/cart", token, nil)
	if code != fiber.StatusOK || len(cart["data"].([]any)) != 0 {
		t.Fatalf("expected empty cart after order: %d %v", code, cart)
	}

	code, details := a.do(t, "GET", "/api/orders/"+order["id"].(string), token, nil)
	if code != fiber.StatusOK || len(details["data"].(map[string]any)["items"].([]any)) != 2 {
		t.Fatalf("order details: %d %v", code, details)
	}

	code, list := a.do(t, "GET", "/api/orders", token, nil)
	if code != fiber.StatusOK || len(list["data"].([]any)) != 1 {
		t.Fatalf("orders: %d %v", code, list)
	}

	if code, body := a.do(t, "POST", "/api/orders", token, fiber.Map{
		"address_id":    uuid.NewString(),
		"delivery_date": "2024-03-02",
		"delivery_time": "19:30",
	}); code != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty cart, got %d %v", code, body)
	}

	if code, _ := a.do(t, "POST", "/api/auth/logout", token, nil); code != fiber.StatusOK {
		t.Fatalf("logout: %d", code)
	}
	if code, _ := a.do(t, "GET", "/api/auth/me", token, nil); code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", code)
	}
}

func TestOtherUsersOrdersAreNotFound(t *testing.T) {
	a := newTestApp(t, nil, nil)
	dish := a.seedDish(t, "Idli", "60")

	owner := a.signIn(t, "9876543210", "Asha")
	a.do(t, "POST", "/api/cart", owner, fiber.Map{"dish_id": dish.String()})
	_, created := a.do(t, "POST", "/api/orders", owner, fiber.Map{
		"address_id":    uuid.NewString(),
		"delivery_date": "2024-03-02",
		"delivery_time": "12:00",
	})
	orderID := created["data"].(map[string]any)["id"].(string)

	other := a.signIn(t, "9123456780", "Ravi")
	if code, body := a.do(t, "GET", "/api/orders/"+orderID, other, nil); code != fiber.StatusNotFound || body["success"] != false {
		t.Fatalf("expected 404, got %d %v", code, body)
	}
}

func TestAnonymousRequests(t *testing.T) {
	a := newTestApp(t, nil, nil)
	dish := a.seedDish(t, "Idli", "60")

	code, cart := a.do(t, "GET", "/api/cart", "", nil)
	if code != fiber.StatusOK || len(cart["data"].([]any)) != 0 {
		t.Fatalf("anonymous cart: %d %v", code, cart)
	}

	code, orders := a.do(t, "GET", "/api/orders", "", nil)
	if code != fiber.StatusOK || len(orders["data"].([]any)) != 0 {
		t.Fatalf("anonymous orders: %d %v", code, orders)
	}

	code, body := a.do(t, "POST", "/api/cart", "", fiber.Map{"dish_id": dish.String()})
	if code != fiber.StatusUnauthorized || body["message"] != "authentication required" {
		t.Fatalf("expected 401, got %d %v", code, body)
	}

	if code, _ := a.do(t, "POST", "/api/auth/logout", "", nil); code != fiber.StatusOK {
		t.Fatalf("anonymous logout: %d", code)
	}
}

func TestVerifyOTPErrors(t *testing.T) {
	a := newTestApp(t, nil, nil)

	_, sent := a.do(t, "POST", "/api/auth/send-otp", "", fiber.Map{"phone": "9876543210"})
	otp := sent["data"].(map[string]any)["otp"].(string)

	if code, body := a.do(t, "POST", "/api/auth/verify-otp", "", fiber.Map{"phone": "9876543210", "otp": otp}); code != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without username, got %d %v", code, body)
	}

	a.now = a.now.Add(services.CodeTTL + time.Second)
	if code, body := a.do(t, "POST", "/api/auth/verify-otp", "", fiber.Map{"phone": "9876543210", "otp": otp, "username": "Asha"}); code != fiber.StatusGone {
		t.Fatalf("expected 410 for expired code, got %d %v", code, body)
	}

	if code, body := a.do(t, "POST", "/api/auth/verify-otp", "", fiber.Map{"phone": "9876543210", "otp": "000000", "username": "Asha"}); code != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown code, got %d %v", code, body)
	}

	if code, _ := a.do(t, "POST", "/api/auth/send-otp", "", fiber.Map{"phone": "12345"}); code != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for malformed phone, got %d", code)
	}
}

func TestSendOTPRateLimited(t *testing.T) {
	a := newTestApp(t, middleware.NewLocalLimiter(1, time.Hour), nil)

	if code, _ := a.do(t, "POST", "/api/auth/send-otp", "", fiber.Map{"phone": "9876543210"}); code != fiber.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code, body := a.do(t, "POST", "/api/auth/send-otp", "", fiber.Map{"phone": "9876543210"}); code != fiber.StatusTooManyRequests || body["success"] != false {
		t.Fatalf("expected 429, got %d %v", code, body)
	}
}

func TestPaymentsNotConfigured(t *testing.T) {
	a := newTestApp(t, nil, nil)
	dish := a.seedDish(t, "Idli", "60")
	token := a.signIn(t, "9876543210", "Asha")

	if code, _ := a.do(t, "POST", "/api/payments/intent", token, nil); code != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty cart, got %d", code)
	}

	a.do(t, "POST", "/api/cart", token, fiber.Map{"dish_id": dish.String()})
	if code, _ := a.do(t, "POST", "/api/payments/intent", token, nil); code != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if code, _ := a.do(t, "POST", "/api/payments/confirm", token, fiber.Map{"client_secret": "pi_1_secret_x", "payment_method": "pm_1"}); code != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestCatalog(t *testing.T) {
	a := newTestApp(t, nil, nil)
	dish := a.seedDish(t, "Idli", "60")

	code, list := a.do(t, "GET", "/api/dishes", "", nil)
	if code != fiber.StatusOK || len(list["data"].([]any)) != 1 {
		t.Fatalf("dishes: %d %v", code, list)
	}
	if code, _ := a.do(t, "GET", "/api/dishes/"+dish.String(), "", nil); code != fiber.StatusOK {
		t.Fatalf("dish: %d", code)
	}
	if code, _ := a.do(t, "GET", "/api/dishes/"+uuid.NewString(), "", nil); code != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code, _ := a.do(t, "GET", "/health", "", nil); code != fiber.StatusOK {
		t.Fatalf("health: %d", code)
	}
}

func TestFailedVerificationsStoreNoSessions(t *testing.T) {
	a := newTestApp(t, nil, nil)
	a.do(t, "POST", "/api/auth/send-otp", "", fiber.Map{"phone": "9876543210"})

	for i := 0; i < 50; i++ {
		code, body := a.do(t, "POST", "/api/auth/verify-otp", "", fiber.Map{"phone": "9876543210", "otp": "000000", "username": "Asha"})
		if code != fiber.StatusNotFound {
			t.Fatalf("attempt %d: expected 404, got %d %v", i+1, code, body)
		}
	}
	if n := a.sessions.Len(); n != 0 {
		t.Fatalf("expected no sessions after failed verifications, got %d", n)
	}

	token := a.signIn(t, "9876543210", "Asha")
	if n := a.sessions.Len(); n != 1 {
		t.Fatalf("expected 1 session after sign-in, got %d", n)
	}
	a.do(t, "POST", "/api/auth/logout", token, nil)
	if n := a.sessions.Len(); n != 0 {
		t.Fatalf("expected logout to drop the session, got %d", n)
	}
}

func TestVerifyOTPRateLimited(t *testing.T) {
	a := newTestApp(t, nil, middleware.NewLocalLimiter(3, time.Hour))
	_, sent := a.do(t, "POST", "/api/auth/send-otp", "", fiber.Map{"phone": "9876543210"})
	otp := sent["data"].(map[string]any)["otp"].(string)

	for i := 0; i < 3; i++ {
		if code, _ := a.do(t, "POST", "/api/auth/verify-otp", "", fiber.Map{"phone": "9876543210", "otp": "000000", "username": "Asha"}); code != fiber.StatusNotFound {
			t.Fatalf("attempt %d: expected 404, got %d", i+1, code)
		}
	}

	code, body := a.do(t, "POST", "/api/auth/verify-otp", "", fiber.Map{"phone": "9876543210", "otp": otp, "username": "Asha"})
	if code != fiber.StatusTooManyRequests || body["success"] != false {
		t.Fatalf("expected 429 once the budget is spent, got %d %v", code, body)
	}

	if code, _ := a.do(t, "POST", "/api/auth/verify-otp", "", fiber.Map{"phone": "9123456780", "otp": "000000", "username": "Ravi"}); code != fiber.StatusNotFound {
		t.Fatalf("expected another phone to keep its own budget, got %d", code)
	}
}
