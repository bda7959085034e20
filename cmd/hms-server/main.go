package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/events"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital scheduling and allocation engine",
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepNoShowsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// sweepNoShowsCmd marks overdue SCHEDULED/CONFIRMED appointments as NO_SHOW.
// The engine keeps no timers; an external scheduler (cron or similar) runs
// this periodically.
func sweepNoShowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-noshows",
		Short: "Mark appointments whose slot has passed as no-shows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			dispatcher := events.NewDispatcher(logger, cfg.EventBufferSize, cfg.EventWorkerCount)
			defer dispatcher.Close()
			dispatcher.Subscribe("*", func(ctx context.Context, ev events.Event) error {
				logger.Info().
					Str("event_id", ev.ID).
					Str("type", ev.Type).
					Str("resource_id", ev.ResourceID).
					Msg("domain event")
				return nil
			})

			svc := scheduling.NewService(
				scheduling.NewTemplateRepo(pool),
				scheduling.NewLeaveRepo(pool),
				scheduling.NewAppointmentRepo(pool),
				nil,
				dispatcher,
				scheduling.Options{
					Policy:             scheduling.EmergencyReservationPolicy{Fraction: cfg.EmergencyReserveFraction},
					MaxAttempts:        cfg.BookingMaxAttempts,
					Backoff:            time.Duration(cfg.BookingBackoffMs) * time.Millisecond,
					DefaultSlotMinutes: cfg.DefaultSlotMinutes,
					NoShowStreak:       cfg.NoShowStreakThreshold,
				},
			)

			marked, err := svc.MarkNoShows(ctx)
			if err != nil {
				return fmt.Errorf("no-show sweep failed: %w", err)
			}
			logger.Info().Int("marked", marked).Msg("no-show sweep complete")
			return nil
		},
	}
}
