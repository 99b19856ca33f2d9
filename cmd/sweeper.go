package cmd

import (
	"fmt"
	"os"

	appointmentpg "github.com/mediconnect/appointment-management/internal/appointment/postgres"
	"github.com/mediconnect/appointment-management/internal/core/events"
	"github.com/mediconnect/appointment-management/internal/notification"
	"github.com/mediconnect/appointment-management/internal/sweeper"
	"github.com/mediconnect/appointment-management/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// sweepCmd runs a single expiry pass and exits, for deployments that prefer
// an external scheduler over the in-process cron.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire overdue pending reservations once and exit",
	Run: func(cmd *cobra.Command, args []string) {
		runSweep()
	},
}

func runSweep() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	appLogger := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize ORM: %v\n", err)
		os.Exit(1)
	}

	repo := appointmentpg.NewAppointmentRepository(gormDB)
	eventBus := events.NewEventBus(appLogger)
	notification.NewEventHandler(appLogger).RegisterEventHandlers(eventBus)

	s := sweeper.New(repo, eventBus, config.Booking.PaymentWindow, config.Booking.SweepInterval, nil, appLogger)
	ids, err := s.Sweep()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		os.Exit(1)
	}

	appLogger.Info("sweep finished", "expired", len(ids))
}
