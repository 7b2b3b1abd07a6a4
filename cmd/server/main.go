package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/bus-charter-booking/internal/checkoutstate"
	"github.com/iliyamo/bus-charter-booking/internal/config"
	"github.com/iliyamo/bus-charter-booking/internal/database"
	"github.com/iliyamo/bus-charter-booking/internal/gateway"
	"github.com/iliyamo/bus-charter-booking/internal/handler"
	"github.com/iliyamo/bus-charter-booking/internal/logger"
	"github.com/iliyamo/bus-charter-booking/internal/metrics"
	"github.com/iliyamo/bus-charter-booking/internal/middleware"
	"github.com/iliyamo/bus-charter-booking/internal/queue"
	"github.com/iliyamo/bus-charter-booking/internal/repository"
	"github.com/iliyamo/bus-charter-booking/internal/router"
	"github.com/iliyamo/bus-charter-booking/internal/service"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Redis is optional: without it checkout state and rate limit buckets
	// live in memory and the response cache is off.
	var rdb *redis.Client
	if client, err := config.NewRedisClient(config.LoadRedisConfig()); err != nil {
		log.Warn("redis unavailable, using in-process fallbacks", zap.Error(err))
	} else {
		rdb = client
		defer rdb.Close()
	}
	var states checkoutstate.Store = checkoutstate.NewMemoryStore(cfg.CheckoutStateTTL)
	if rdb != nil {
		states = checkoutstate.NewRedisStore(rdb, cfg.CheckoutStateTTL)
	}

	gwCfg, err := config.LoadGatewayConfig()
	if err != nil {
		return err
	}
	gw := newGateway(gwCfg)
	log.Info("payment gateway selected", zap.String("gateway", gw.Name()))

	broker := config.LoadBrokerConfig()
	var events service.EventPublisher = queue.Nop{}
	if broker.Enabled {
		events = queue.NewPublisher(broker.URL, broker.Queue, log)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("charter", reg)

	deps := service.Deps{
		Tx:           database.TxRunner{DB: db},
		Customers:    repository.NewCustomerRepo(db),
		Reservations: repository.NewReservationRepo(db),
		References:   repository.NewBookingReferenceRepo(db),
		Buses:        repository.NewBusRepo(db),
		FuelPrices:   repository.NewFuelPriceRepo(db),
		Costs:        repository.NewCostRepo(db),
		Invoices:     repository.NewInvoiceRepo(db),
		Refunds:      repository.NewRefundRepo(db),
		Events:       events,
		Metrics:      m,
		Log:          log,
	}
	costs := service.NewCostService(deps)
	bookings := service.NewBookingService(deps, costs)
	payments := service.NewPaymentService(deps, service.PaymentConfig{
		Gateway:  gw,
		States:   states,
		BaseURL:  cfg.PublicBaseURL,
		Currency: gwCfg.Currency,
	})
	refunds := service.NewRefundService(deps, gw, gwCfg.Currency)
	fleet := service.NewFleetService(deps)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log, m))

	auth := handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), log)
	public := &handler.PublicHandler{
		Bookings:    bookings,
		Costs:       costs,
		Payments:    payments,
		Refunds:     refunds,
		Fleet:       fleet,
		FrontendURL: cfg.FrontendURL,
		Log:         log,
	}
	admin := &handler.AdminHandler{
		Bookings: bookings,
		Costs:    costs,
		Payments: payments,
		Refunds:  refunds,
		Fleet:    fleet,
		Log:      log,
	}
	limit := middleware.RateLimit(config.LoadRateLimitConfig(), rdb, log)
	cache := middleware.ResponseCache(config.LoadCacheConfig(), rdb, log)

	router.RegisterRoutes(e, db, reg)
	router.RegisterAuth(e, auth, limit)
	router.RegisterPublic(e, public, limit, cache)
	router.RegisterAdmin(e, admin, auth, cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newGateway(cfg config.GatewayConfig) gateway.Gateway {
	if cfg.Provider == "stripe" {
		return gateway.NewStripe(cfg.SecretKey, cfg.WebhookSecret)
	}
	return gateway.NewPayMongo(cfg.SecretKey, cfg.WebhookSecret, cfg.Timeout, gateway.WithPaymentMethods(cfg.Methods))
}
