package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/plattr/internal/handlers"
	"github.com/example/plattr/internal/middleware"
	"github.com/example/plattr/internal/services"
	"github.com/example/plattr/internal/session"
	"github.com/example/plattr/internal/store"
)

// Deps is everything the HTTP layer needs.
type Deps struct {
	Store      store.Store
	Sessions   session.Provider
	JWTSecret  string
	TokenTTL   time.Duration
	OTPLimiter middleware.Limiter
	// VerifyLimiter bounds code guesses per phone on verify-otp.
	VerifyLimiter middleware.Limiter

	Auth      *services.AuthService
	Cart      *services.CartService
	Orders    *services.OrderService
	Payments  *services.PaymentService
	Addresses *services.AddressService

	Log *zap.SugaredLogger
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, d Deps) {
	authHandler := handlers.NewAuthHandler(d.Auth, d.Sessions, d.JWTSecret, d.TokenTTL)
	catalogHandler := handlers.NewCatalogHandler(d.Store, d.Log)
	cartHandler := handlers.NewCartHandler(d.Cart)
	orderHandler := handlers.NewOrderHandler(d.Orders)
	paymentHandler := handlers.NewPaymentHandler(d.Payments)
	profileHandler := handlers.NewProfileHandler(d.Addresses)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "status": "ok"})
	})

	api := app.Group("/api", middleware.SessionMiddleware(d.JWTSecret, d.Sessions))

	// Auth routes
	auth := api.Group("/auth")
	if d.OTPLimiter != nil {
		auth.Post("/send-otp", middleware.RateLimit(d.OTPLimiter, middleware.PhoneOrIP, d.Log), authHandler.SendOTP)
	} else {
		auth.Post("/send-otp", authHandler.SendOTP)
	}
	if d.VerifyLimiter != nil {
		auth.Post("/verify-otp", middleware.RateLimit(d.VerifyLimiter, middleware.PhoneOrIP, d.Log), authHandler.VerifyOTP)
	} else {
		auth.Post("/verify-otp", authHandler.VerifyOTP)
	}
	auth.Post("/check-phone", authHandler.CheckPhone)
	auth.Post("/logout", authHandler.Logout)
	auth.Get("/me", authHandler.Me)

	// Catalog routes
	api.Get("/categories", catalogHandler.ListCategories)
	api.Get("/dishes", catalogHandler.ListDishes)
	api.Get("/dishes/:id", catalogHandler.GetDish)

	cart := api.Group("/cart")
	cart.Get("/", cartHandler.GetCart)
	cart.Post("/", cartHandler.AddToCart)
	cart.Delete("/", cartHandler.ClearCart)
	cart.Put("/:id", cartHandler.UpdateCartItem)
	cart.Delete("/:id", cartHandler.RemoveFromCart)

	orders := api.Group("/orders")
	orders.Post("/", orderHandler.CreateOrder)
	orders.Get("/", orderHandler.ListOrders)
	orders.Get("/:id", orderHandler.GetOrder)

	payments := api.Group("/payments")
	payments.Post("/quote", paymentHandler.Quote)
	payments.Post("/intent", paymentHandler.CreateIntent)
	payments.Post("/confirm", paymentHandler.Confirm)

	addresses := api.Group("/addresses")
	addresses.Get("/", profileHandler.ListAddresses)
	addresses.Post("/", profileHandler.CreateAddress)
	addresses.Put("/:id", profileHandler.UpdateAddress)
	addresses.Delete("/:id", profileHandler.DeleteAddress)
}
