package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/stitchbook/api/internal/config"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/dates"
)

func main() {
	root := &cobra.Command{
		Use:          "stitchbook-admin",
		Short:        "Maintenance commands for the stitchbook API",
		SilenceUsage: true,
	}

	root.AddCommand(migrateCmd(), seedCmd(), markOverdueCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := database.Migrate(cfg.DatabaseURL); err != nil {
				return err
			}
			log.Println("Migrations applied")
			return nil
		},
	}
}

func markOverdueCmd() *cobra.Command {
	var on string
	cmd := &cobra.Command{
		Use:   "mark-overdue",
		Short: "Move open orders past their delivery date to Overdue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			today := dates.Today()
			if on != "" {
				t, err := dates.Parse(on)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				today = t
			}

			return withPool(cmd.Context(), func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				rows, err := database.New(pool).MarkOverdueOrders(ctx, today)
				if err != nil {
					return fmt.Errorf("mark overdue: %w", err)
				}
				perCompany := make(map[string]int)
				for _, row := range rows {
					perCompany[row.CompanyID.String()]++
				}
				for company, n := range perCompany {
					log.Printf("Company %s: %d orders overdue", company, n)
				}
				log.Printf("Marked %d orders overdue as of %s", len(rows), dates.FormatStorage(today))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&on, "date", "", "Treat this date (YYYY-MM-DD) as today")
	return cmd
}

// withPool loads the config, connects and runs fn.
func withPool(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(connectCtx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	log.Println("Connected to database")

	return fn(ctx, cfg, pool)
}
