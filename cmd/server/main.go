// @title Bookstore API
// @version 1.0
// @description 订单、支付与库存一致性服务
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/bwmarrin/snowflake"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/bookstore/internal/api/handler"
	"github.com/d60-Lab/bookstore/internal/api/middleware"
	"github.com/d60-Lab/bookstore/internal/api/router"
	"github.com/d60-Lab/bookstore/internal/cache"
	"github.com/d60-Lab/bookstore/internal/config"
	"github.com/d60-Lab/bookstore/internal/events"
	"github.com/d60-Lab/bookstore/internal/gateway"
	"github.com/d60-Lab/bookstore/internal/lock"
	"github.com/d60-Lab/bookstore/internal/notify"
	"github.com/d60-Lab/bookstore/internal/repository"
	"github.com/d60-Lab/bookstore/internal/service"
	"github.com/d60-Lab/bookstore/internal/telemetry"
	"github.com/d60-Lab/bookstore/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", true, "run schema migration on start")
	flag.Parse()

	if err := run(*configPath, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if _, err := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		Mode:       cfg.Log.Mode,
		FileEnable: cfg.Log.FileEnable,
		Filename:   cfg.Log.Filename,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			SampleRate:       cfg.Sentry.SampleRate,
			AttachStacktrace: true,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := func(context.Context) error { return nil }
	if cfg.Telemetry.OTLPEndpoint != "" {
		if shutdownTracer, err = telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.Insecure); err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
	}
	metrics, shutdownMetrics, err := telemetry.InitMetrics(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	db, err := repository.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = repository.Close(db) }()
	if migrate {
		if err := repository.Migrate(db); err != nil {
			return err
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
	}

	gin.SetMode(cfg.Server.Mode)
	app, err := build(cfg, db, rdb, metrics)
	if err != nil {
		return err
	}

	var stopSweeper func(context.Context) error
	if cfg.Sweeper.Enabled {
		if stopSweeper, err = app.sweeper.Start(cfg.Sweeper.Schedule); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		logger.Info("unpaid order sweeper started", zap.String("schedule", cfg.Sweeper.Schedule))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if stopSweeper != nil {
		if err := stopSweeper(shutdownCtx); err != nil {
			logger.Warn("sweeper shutdown", zap.Error(err))
		}
	}
	if err := app.dispatcher.Close(cfg.Notify.SendTimeout); err != nil {
		logger.Warn("notification dispatcher shutdown", zap.Error(err))
	}
	app.lowStock.Wait()
	if err := shutdownMetrics(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
	return nil
}

type application struct {
	engine     *gin.Engine
	sweeper    *service.UnpaidOrderSweeper
	dispatcher *notify.Dispatcher
	lowStock   *events.LowStockMonitor
}

// build 组装仓储、服务与路由；rdb 为 nil 时使用进程内锁且不缓存商品
func build(cfg *config.Config, db *gorm.DB, rdb *redis.Client, metrics *telemetry.Metrics) (*application, error) {
	if err := middleware.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}

	ids, err := snowflake.NewNode(cfg.Server.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}

	txr := repository.NewTransactor(db)
	users := repository.NewUserRepository(db)
	products := repository.NewProductRepository(db)
	carts := repository.NewCartRepository(db)
	orders := repository.NewOrderRepository(db)
	payments := repository.NewPaymentRepository(db)
	reviews := repository.NewReviewRepository(db)

	var locker lock.Locker = lock.NewLocalLocker()
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, "bookstore:lock:", cfg.Redis.LockTTL)
	}
	productCache := cache.NewProductCache(rdb, cfg.Redis.ProductTTL, products.ListActiveByIDs, metrics)

	var mailer notify.Mailer
	if cfg.Mail.Host != "" {
		mailer = notify.NewSMTPMailer(cfg.Mail)
	} else {
		mailer = notify.NewLogMailer(func(msg notify.Message) {
			logger.Info("mail (smtp disabled)", zap.String("to", msg.To), zap.String("subject", msg.Subject))
		})
	}
	dispatcher, err := notify.NewDispatcher(mailer, cfg.Notify.Workers, cfg.Notify.SendTimeout)
	if err != nil {
		return nil, fmt.Errorf("notification dispatcher: %w", err)
	}

	lowStock := events.NewLowStockMonitor(EventBus.New(), cfg.Inventory.LowStockThreshold, metrics)
	if err := lowStock.Subscribe(events.LogLowStock); err != nil {
		return nil, err
	}

	orderSvc := service.NewOrderService(txr, orders, products, users, carts, ids, metrics)
	paymentSvc := service.NewPaymentService(service.PaymentDeps{
		Tx:       txr,
		Orders:   orders,
		Payments: payments,
		Products: products,
		Users:    users,
		Gateway:  gateway.NewVNPay(cfg.Gateway),
		Locker:   locker,
		Notifier: dispatcher,
		LowStock: lowStock,
		Metrics:  metrics,
	})

	pingers := map[string]handler.Pinger{
		"database": func(ctx context.Context) error { return repository.Ping(ctx, db) },
	}
	if rdb != nil {
		pingers["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	h := handler.NewHandler(
		service.NewCartService(txr, carts, products, users),
		orderSvc,
		paymentSvc,
		service.NewReviewService(reviews, orders),
		service.NewCatalogService(products, productCache),
		handler.Options{
			SuccessURL: cfg.Gateway.SuccessURL,
			FailureURL: cfg.Gateway.FailureURL,
			Pingers:    pingers,
		},
	)
	engine := router.New(h, router.Options{
		ServiceName:       cfg.Telemetry.ServiceName,
		JWTSecret:         cfg.JWT.Secret,
		JWTIssuer:         cfg.JWT.Issuer,
		GatewayRatePerSec: cfg.Gateway.RatePerSec,
		GatewayRateBurst:  cfg.Gateway.RateBurst,
		EnableSwagger:     cfg.Server.Mode != gin.ReleaseMode,
	})

	return &application{
		engine:     engine,
		sweeper:    service.NewUnpaidOrderSweeper(orders, orderSvc, cfg.Sweeper.UnpaidTTL, cfg.Sweeper.BatchSize, metrics),
		dispatcher: dispatcher,
		lowStock:   lowStock,
	}, nil
}
