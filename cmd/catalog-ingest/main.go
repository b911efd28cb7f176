package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-kart/internal/ingest"
	"github.com/xenking/loyalty-kart/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		capacity    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing product feeds")
	flag.StringVar(&pattern, "pattern", "*.jsonl.gz", "glob matching feed files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&capacity, "capacity", ingest.DefaultCapacity, "expected number of distinct product ids")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, filepath.Join(dataDir, pattern), databaseURL, capacity); err != nil {
		lg.Error("Catalog ingest failed", zap.Error(err))
		cancel()
		_ = lg.Sync()
		os.Exit(1)
	}

	lg.Info("Catalog ingest completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, glob, databaseURL string, capacity uint) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrap(err, "match feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no feed files match %s", glob)
	}

	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	lg.Info("Ingesting feeds", zap.Strings("files", files))

	stats, err := ingest.Run(ctx, lg, files, postgres.NewProductRepository(pool), ingest.Config{Capacity: capacity})
	lg.Info("Ingest stats",
		zap.Int("lines", stats.Lines),
		zap.Int("upserted", stats.Upserted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("invalid", stats.Invalid),
	)
	return err
}
