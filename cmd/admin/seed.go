package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/stitchbook/api/internal/auth"
	"github.com/stitchbook/api/internal/config"
	"github.com/stitchbook/api/internal/database"
)

type seedFlags struct {
	email   string
	phone   string
	pin     string
	name    string
	company string
}

func seedCmd() *cobra.Command {
	var flags seedFlags
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create an owner account and their boutique if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.withDefaults()
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				return runSeed(ctx, cfg, pool, flags)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.email, "email", "", "Owner email address (SEED_EMAIL)")
	f.StringVar(&flags.phone, "phone", "", "Owner 10-digit mobile number (SEED_PHONE)")
	f.StringVar(&flags.pin, "pin", "", "Owner 4-digit PIN (SEED_PIN)")
	f.StringVar(&flags.name, "name", "", "Owner full name (SEED_NAME)")
	f.StringVar(&flags.company, "company", "", "Boutique name (SEED_COMPANY)")
	return cmd
}

// withDefaults fills unset flags from the environment, then from defaults.
func (f *seedFlags) withDefaults() {
	fill := func(v *string, env, fallback string) {
		if *v == "" {
			*v = os.Getenv(env)
		}
		if *v == "" {
			*v = fallback
		}
	}
	fill(&f.email, "SEED_EMAIL", "owner@stitchbook.local")
	fill(&f.phone, "SEED_PHONE", "9000000001")
	fill(&f.name, "SEED_NAME", "Boutique Owner")
	fill(&f.company, "SEED_COMPANY", "Stitchbook Boutique")
	if f.pin == "" {
		f.pin = os.Getenv("SEED_PIN")
	}
	if f.pin == "" {
		f.pin = "1234"
		log.Println("WARNING: Using default PIN '1234'. Change immediately in production!")
	}
}

func runSeed(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, flags seedFlags) error {
	queries := database.New(pool)

	user, err := seedOwner(ctx, cfg, queries, flags)
	if err != nil {
		return fmt.Errorf("seed owner: %w", err)
	}

	if user.CompanyID.Valid {
		log.Printf("User '%s' already has company %s, skipping", user.Email, uuid.UUID(user.CompanyID.Bytes))
		return nil
	}

	// Company and membership together or neither
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	q := queries.WithTx(tx)
	company, err := q.CreateCompany(ctx, database.CreateCompanyParams{
		OwnerID: user.ID,
		Name:    flags.company,
		Phone:   flags.phone,
	})
	if err != nil {
		return fmt.Errorf("create company: %w", err)
	}
	if _, err := q.SetUserCompany(ctx, user.ID, company.ID); err != nil {
		return fmt.Errorf("set user company: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Println("Seed completed successfully")
	log.Printf("Company ID: %s", company.ID)
	log.Printf("Owner ID: %s", user.ID)
	return nil
}

// seedOwner returns the existing user for the email or registers one.
func seedOwner(ctx context.Context, cfg *config.Config, queries *database.Queries, flags seedFlags) (database.User, error) {
	user, err := queries.GetUserByEmail(ctx, flags.email)
	if err == nil {
		log.Printf("User '%s' already exists (ID: %s), skipping", flags.email, user.ID)
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.User{}, fmt.Errorf("check user: %w", err)
	}

	bridge := auth.NewBridge(queries, auth.NewPasswordProvider(queries), cfg.MasterPassword, cfg.LegacyPINSuffix)
	user, err = bridge.Register(ctx, auth.RegisterParams{
		Email:    flags.email,
		Phone:    flags.phone,
		FullName: flags.name,
		PIN:      flags.pin,
	})
	if err != nil {
		return database.User{}, err
	}

	log.Printf("Created owner user '%s' (ID: %s)", flags.email, user.ID)
	return user, nil
}
