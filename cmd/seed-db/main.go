package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/loyalty-kart/internal/domain/auth"
	"github.com/xenking/loyalty-kart/internal/seed"
	"github.com/xenking/loyalty-kart/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		demoEmail    string
		demoPassword string
		jwtSecret    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&demoEmail, "demo-email", "demo@electromart.test", "demo account email")
	flag.StringVar(&demoPassword, "demo-password", "", "demo account password; empty skips the account (or LOYALTY_DEMO_PASSWORD env)")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "token secret used to build the auth service (or LOYALTY_JWT_SECRET env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if demoPassword == "" {
		demoPassword = os.Getenv("LOYALTY_DEMO_PASSWORD")
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("LOYALTY_JWT_SECRET")
	}
	if jwtSecret == "" {
		// Registration only needs the issuer to sign the session it discards.
		jwtSecret = "seed-db"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, demoEmail, demoPassword, jwtSecret); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, demoEmail, demoPassword, jwtSecret string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("upserting catalog",
		slog.Int("categories", len(seed.Categories())),
		slog.Int("products", len(seed.Products(time.Time{}))),
	)

	if err := seed.LoadCatalog(ctx, postgres.NewProductRepository(pool), time.Now()); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	if demoPassword == "" {
		slog.Info("no demo password, skipping demo account")
		return nil
	}

	issuer, err := auth.NewIssuer(jwtSecret, time.Minute)
	if err != nil {
		return errors.Wrap(err, "create token issuer")
	}
	created, err := seed.DemoUser(ctx, auth.NewService(postgres.NewUserRepository(pool), issuer), demoEmail, demoPassword)
	if err != nil {
		return errors.Wrap(err, "seed demo user")
	}

	slog.Info("demo account ready", slog.String("email", demoEmail), slog.Bool("created", created))

	return nil
}
