package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediconnect/appointment-management/internal"
	"github.com/mediconnect/appointment-management/internal/appointment"
	appointmentpg "github.com/mediconnect/appointment-management/internal/appointment/postgres"
	"github.com/mediconnect/appointment-management/internal/auth"
	"github.com/mediconnect/appointment-management/internal/core/events"
	"github.com/mediconnect/appointment-management/internal/directory"
	directorypg "github.com/mediconnect/appointment-management/internal/directory/postgres"
	"github.com/mediconnect/appointment-management/internal/mpesa"
	"github.com/mediconnect/appointment-management/internal/notification"
	"github.com/mediconnect/appointment-management/internal/observability/metrics"
	"github.com/mediconnect/appointment-management/internal/payment"
	paymentpg "github.com/mediconnect/appointment-management/internal/payment/postgres"
	"github.com/mediconnect/appointment-management/internal/sweeper"
	"github.com/mediconnect/appointment-management/internal/transport"
	"github.com/mediconnect/appointment-management/internal/transport/rest"
	"github.com/mediconnect/appointment-management/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle booking and payment callback requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config  *internal.Config
	DB      *sqlx.DB
	Router  *chi.Mux
	Sweeper *sweeper.Sweeper
	Logger  *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := deps.Sweeper.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start sweeper: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
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
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		deps.Sweeper.Stop()
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	appLogger := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// reuse the pgx pool for GORM instead of opening a second one
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ORM: %w", err)
	}

	var bookingMetrics *metrics.BookingMetrics
	if config.Observability.Metrics.Enabled {
		bookingMetrics = metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	}

	eventBus := events.NewEventBus(appLogger)
	notification.NewEventHandler(appLogger).RegisterEventHandlers(eventBus)

	appointmentRepo := appointmentpg.NewAppointmentRepository(gormDB)
	paymentRepo := paymentpg.NewPaymentRepository(gormDB)
	directoryRepo := directorypg.NewDirectoryRepository(gormDB)

	directoryService := directory.NewService(directoryRepo, appLogger)

	gatewayClient := mpesa.NewClient(mpesa.Config{
		OAuthURL:       config.Mpesa.OAuthURL,
		STKPushURL:     config.Mpesa.STKPushURL,
		CallbackURL:    config.Mpesa.CallbackURL,
		ConsumerKey:    config.Mpesa.ConsumerKey,
		ConsumerSecret: config.Mpesa.ConsumerSecret,
		ShortCode:      config.Mpesa.ShortCode,
		Passkey:        config.Mpesa.Passkey,
		RequestTimeout: config.Mpesa.RequestTimeout,
	}, appLogger)

	appointmentService := appointment.NewService(
		appointmentRepo,
		gatewayClient,
		directoryService,
		config.Mpesa.PayerSource,
		bookingMetrics,
		appLogger,
	)
	appointmentHandler := appointment.NewHandler(appointmentService)

	baseHandler := transport.NewBaseHandler(appLogger)
	paymentService := payment.NewService(paymentRepo, eventBus, bookingMetrics, appLogger)
	callbackHandler := payment.NewCallbackHandler(baseHandler, paymentService, appLogger)

	tokenValidator := auth.NewTokenValidator(config.Security.JWTAccessSecret)
	authMiddleware := auth.NewMiddleware(baseHandler, tokenValidator)

	reservationSweeper := sweeper.New(
		appointmentRepo,
		eventBus,
		config.Booking.PaymentWindow,
		config.Booking.SweepInterval,
		bookingMetrics,
		appLogger,
	)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, rest.RouterConfig{
		AllowedOrigins: config.Server.AllowedOrigins,
		MetricsEnabled: config.Observability.Metrics.Enabled,
	}, authMiddleware, appointmentHandler, callbackHandler, appLogger)

	return &Dependencies{
		Config:  config,
		DB:      db,
		Router:  router,
		Sweeper: reservationSweeper,
		Logger:  appLogger,
	}, nil
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

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
