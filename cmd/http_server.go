package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/auth"
	"github.com/frahmantamala/song-requests/internal/checkout"
	"github.com/frahmantamala/song-requests/internal/core/events"
	"github.com/frahmantamala/song-requests/internal/integrity"
	integrityRepo "github.com/frahmantamala/song-requests/internal/integrity/postgres"
	"github.com/frahmantamala/song-requests/internal/invoice"
	invoiceRepo "github.com/frahmantamala/song-requests/internal/invoice/postgres"
	"github.com/frahmantamala/song-requests/internal/orphan"
	"github.com/frahmantamala/song-requests/internal/paymentgateway"
	"github.com/frahmantamala/song-requests/internal/reconcile"
	"github.com/frahmantamala/song-requests/internal/refund"
	"github.com/frahmantamala/song-requests/internal/request"
	requestRepo "github.com/frahmantamala/song-requests/internal/request/postgres"
	"github.com/frahmantamala/song-requests/internal/tenant"
	tenantRepo "github.com/frahmantamala/song-requests/internal/tenant/postgres"
	"github.com/frahmantamala/song-requests/internal/transport/middleware"
	"github.com/frahmantamala/song-requests/internal/transport/rest"
	"github.com/frahmantamala/song-requests/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle guest requests, gateway webhooks and admin operations`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

// Dependencies holds the infrastructure and services shared by the server
// and the worker commands.
type Dependencies struct {
	Config    *internal.Config
	DB        *sqlx.DB
	Gorm      *gorm.DB
	Redis     *redis.Client
	Bus       *events.EventBus
	Forwarder *events.Forwarder
	Gateway   *paymentgateway.Client
	Logger    *slog.Logger

	Organizations tenant.RepositoryAPI
	Requests      *request.Service
	Engine        *reconcile.Engine
	Checkout      *checkout.Service
	Refunds       *refund.Service
	Recorder      *integrity.Recorder
	Scanner       *orphan.Scanner
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	router, err := setupRoutes(deps)
	if err != nil {
		deps.Logger.Error("failed to set up routes", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		if err := deps.Bus.Wait(ctx); err != nil {
			deps.Logger.Warn("event handlers did not drain before shutdown", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) (*chi.Mux, error) {
	cfg := deps.Config

	checks := map[string]rest.CheckFunc{
		"database": deps.DB.PingContext,
	}
	var limiter middleware.Limiter
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
		limiter = middleware.NewRedisLimiter(deps.Redis, "ratelimit:submit:", cfg.Redis.SubmitLimit, cfg.Redis.SubmitWindow)
	}

	opts := rest.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		OpenAPIPath:     cfg.Server.OpenAPIPath,
		SubmitLimiter:   limiter,
		Tokens:          auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.AdminTokenTTL),
		Permissions:     auth.NewPermissionChecker(),
		AdminPermission: adminPermission(cfg),
	}
	if cfg.Server.OpenAPIPath != "" {
		apiRouter, err := middleware.LoadOpenAPIRouter(context.Background(), cfg.Server.OpenAPIPath)
		if err != nil {
			return nil, err
		}
		opts.OpenAPI = apiRouter
	}

	verifier := paymentgateway.NewWebhookVerifier(cfg.Payment.WebhookSecret, cfg.Payment.WebhookTolerance)
	handlers := rest.Handlers{
		Health:    rest.NewHealthHandler(checks),
		Request:   request.NewHandler(deps.Requests),
		Checkout:  checkout.NewHandler(deps.Checkout),
		Reconcile: reconcile.NewHandler(deps.Engine, verifier, paymentgateway.SignatureHeader),
		Orphan:    orphan.NewHandler(deps.Scanner),
		Refund:    refund.NewHandler(deps.Refunds),
		Integrity: integrity.NewHandler(deps.Recorder),
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, handlers, opts, deps.Logger)
	return router, nil
}

func adminPermission(cfg *internal.Config) string {
	if cfg.Security.AdminPermision != "" {
		return cfg.Security.AdminPermision
	}
	return auth.PermissionManageRequests
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gormDB, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	deps := &Dependencies{
		Config: config,
		DB:     db,
		Gorm:   gormDB,
		Bus:    events.NewEventBus(lg),
		Logger: lg,
	}

	var cache request.StatusCache = request.NoopStatusCache{}
	if config.Redis.Addr != "" {
		deps.Redis = redis.NewClient(&redis.Options{Addr: config.Redis.Addr, DB: config.Redis.DB})
		if err := deps.Redis.Ping(context.Background()).Err(); err != nil {
			lg.Warn("redis unavailable, continuing without cache and rate limiting", "addr", config.Redis.Addr, "error", err)
			_ = deps.Redis.Close()
			deps.Redis = nil
		} else {
			cache = request.NewRedisStatusCache(deps.Redis, config.Redis.StatusCacheTTL)
		}
	}

	if len(config.Kafka.Brokers) > 0 {
		deps.Forwarder = events.NewForwarder(events.NewKafkaWriter(config.Kafka.Brokers, config.Kafka.Topic), lg)
		deps.Forwarder.Attach(deps.Bus)
		lg.Info("forwarding domain events", "brokers", strings.Join(config.Kafka.Brokers, ","), "topic", config.Kafka.Topic)
	}

	deps.Gateway = paymentgateway.NewClient(paymentgateway.Config{
		BaseURL:        config.Payment.GatewayURL,
		SecretKey:      config.Payment.SecretKey,
		Timeout:        config.Payment.RequestTimeout,
		MaxReadRetries: config.Payment.MaxReadRetries,
		RetryBaseDelay: config.Payment.RetryBaseDelay,
	}, lg)

	requests := requestRepo.NewRequestRepository(gormDB)
	deps.Organizations = tenantRepo.NewOrganizationRepository(gormDB)

	deps.Recorder = integrity.NewRecorder(integrityRepo.NewIssueRepository(gormDB), deps.Bus, lg)
	invoice.NewIssuer(invoiceRepo.NewInvoiceRepository(gormDB), lg).Register(deps.Bus)

	deps.Requests = request.NewService(request.ServiceDeps{
		Repo:         requests,
		Queue:        requestRepo.NewQueueRepository(db),
		Resolver:     tenant.NewDefaultResolver(deps.Organizations, config.Tenant.DefaultOrganizationSlug, lg),
		Orgs:         deps.Organizations,
		Capabilities: tenant.NewStaticCapabilities(config.Tenant.PriorityForAll, config.Tenant.PriorityAllowlist),
		Codes:        request.NewRandomCodeGenerator(config.Payment.CodePrefix),
		Cache:        cache,
		Publisher:    deps.Bus,
	}, request.Settings{
		Currency:     config.Payment.Currency,
		NextFee:      config.Payment.DefaultNextFee,
		FastTrackFee: config.Payment.DefaultFastFee,
	}, lg)

	deps.Engine = reconcile.NewEngine(requests, deps.Gateway, reconcile.Options{
		Publisher: deps.Bus,
		Cache:     cache,
		Recorder:  deps.Recorder,
		Currency:  config.Payment.Currency,
	}, lg)

	builder := checkout.NewBuilder(config.Payment.Currency, checkout.URLs{
		APIBaseURL:       config.Server.BaseURL,
		PublicBaseURL:    config.Payment.PublicBaseURL,
		GeneralEventCode: config.Payment.GeneralEventCode,
	})
	successURL := strings.TrimRight(config.Payment.PublicBaseURL, "/") + config.Payment.SuccessPath
	deps.Checkout = checkout.NewService(requests, deps.Gateway, builder, deps.Engine, successURL, lg)

	deps.Refunds = refund.NewService(requests, deps.Gateway, cache, deps.Bus, deps.Recorder, lg)

	deps.Scanner = orphan.NewScanner(requests, deps.Gateway, deps.Engine, deps.Recorder, orphan.Config{
		Lookback:     config.Scanner.Lookback,
		BatchSize:    config.Scanner.BatchSize,
		Concurrency:  config.Scanner.Concurrency,
		IntentWindow: config.Scanner.IntentWindow,
		MaxPages:     config.Scanner.MaxPages,
	}, lg)

	return deps, nil
}

// Close releases connections in reverse order of acquisition.
func (d *Dependencies) Close() {
	if d.Forwarder != nil {
		if err := d.Forwarder.Close(); err != nil {
			d.Logger.Error("Kafka writer close error", "error", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool with the gorm repositories.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}
