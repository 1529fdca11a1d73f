package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/plattr/internal/config"
	"github.com/example/plattr/internal/database"
	"github.com/example/plattr/internal/handlers"
	"github.com/example/plattr/internal/logger"
	"github.com/example/plattr/internal/middleware"
	"github.com/example/plattr/internal/models"
	"github.com/example/plattr/internal/payment"
	"github.com/example/plattr/internal/routes"
	"github.com/example/plattr/internal/services"
	"github.com/example/plattr/internal/session"
	"github.com/example/plattr/internal/store"
	"github.com/example/plattr/internal/store/gormstore"
	"github.com/example/plattr/internal/store/postgrest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg, err := logger.New(cfg.Development())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logg.Sync()

	st, err := openStore(cfg, logg)
	if err != nil {
		logg.Fatalw("store init failed", "backend", cfg.StoreBackend, "error", err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			logg.Fatalw("redis ping failed", "addr", cfg.RedisAddr, "error", err)
		}
		defer rdb.Close()
	}

	var (
		sessions      session.Provider
		otpLimiter    middleware.Limiter
		verifyLimiter middleware.Limiter
	)
	if rdb != nil {
		sessions = session.NewRedisProvider(rdb, cfg.TokenExpires)
		otpLimiter = middleware.NewRedisLimiter(rdb, "ratelimit:otp:", cfg.OTPRateLimit, cfg.OTPRateWindow)
		verifyLimiter = middleware.NewRedisLimiter(rdb, "ratelimit:verify:", cfg.OTPVerifyLimit, cfg.OTPRateWindow)
	} else {
		logg.Warnw("REDIS_ADDR not set, sessions are kept in memory")
		sessions = session.NewMemoryProvider(cfg.TokenExpires)
		otpLimiter = middleware.NewLocalLimiter(cfg.OTPRateLimit, cfg.OTPRateWindow)
		verifyLimiter = middleware.NewLocalLimiter(cfg.OTPVerifyLimit, cfg.OTPRateWindow)
	}

	var numbers services.OrderNumberAllocator = services.NewStoreOrderNumbers(st)
	if cfg.OrderNumbers == config.OrderNumbersRedis {
		numbers = services.NewRedisOrderNumbers(rdb, st)
	}

	var gateway payment.Gateway
	if cfg.StripePublishableKey != "" {
		gateway = payment.NewStripeGateway(cfg.StripePublishableKey, cfg.StripeAPIBase, logg)
	} else {
		logg.Warnw("STRIPE_PUBLISHABLE_KEY not set, payment confirmation disabled")
	}

	policy := services.ParseReadPolicy(cfg.ReadPolicy)
	pricing := services.Pricing{DeliveryFee: cfg.DeliveryFee, TaxRate: cfg.TaxRate}
	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, logg)

	authService := services.NewAuthService(st, services.LogCodeSender{Log: logg}, logg, services.AuthOptions{
		ExposeCodes: cfg.ShouldExposeOTP(),
	})
	cartService := services.NewCartService(st, logg, policy)
	orderService := services.NewOrderService(st, cartService, logg, services.OrderOptions{
		Pricing:  &pricing,
		Numbers:  numbers,
		Notifier: telegram,
		Currency: cfg.Currency,
		Policy:   policy,
	})
	paymentService := services.NewPaymentService(cartService, gateway, pricing, cfg.Currency, logg)
	addressService := services.NewAddressService(st, logg)

	app := fiber.New(fiber.Config{
		AppName:      "Plattr Backend",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	routes.Register(app, routes.Deps{
		Store:         st,
		Sessions:      sessions,
		JWTSecret:     cfg.JWTSecret,
		TokenTTL:      cfg.TokenExpires,
		OTPLimiter:    otpLimiter,
		VerifyLimiter: verifyLimiter,
		Auth:          authService,
		Cart:          cartService,
		Orders:        orderService,
		Payments:      paymentService,
		Addresses:     addressService,
		Log:           logg,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logg.Infow("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logg.Errorw("shutdown failed", "error", err)
		}
	}()

	logg.Infow("starting server", "port", cfg.AppPort, "store", cfg.StoreBackend)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		logg.Fatalw("fiber.Listen error", "error", err)
	}

	orderService.Wait()
}

func openStore(cfg *config.Config, logg *zap.SugaredLogger) (store.Store, error) {
	if cfg.StoreBackend == config.StoreBackendREST {
		return postgrest.New(postgrest.Config{
			BaseURL: cfg.SupabaseURL,
			APIKey:  cfg.SupabaseKey,
			Timeout: cfg.StoreTimeout,
		}, logg), nil
	}

	db, err := database.Connect(cfg.DatabaseURL, logg, cfg.Development())
	if err != nil {
		return nil, err
	}
	return gormstore.New(db, models.Registry()), nil
}
