package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-kart/internal/domain/order"
	"github.com/xenking/loyalty-kart/internal/domain/product"
	"github.com/xenking/loyalty-kart/internal/domain/user"
	"github.com/xenking/loyalty-kart/internal/seed"
	"github.com/xenking/loyalty-kart/internal/storage/memory"
	"github.com/xenking/loyalty-kart/internal/storage/postgres"
	"github.com/xenking/loyalty-kart/pkg/health"
)

// catalog is a product repository that also accepts seed upserts.
type catalog interface {
	product.Repository
	seed.Catalog
}

// stores bundles the repositories of one storage backend.
type stores struct {
	tx       order.Transactor
	products catalog
	users    user.Repository
	orders   order.Repository
	outbox   order.Outbox
	// db is nil for the memory backend.
	db    health.Pinger
	close func()
}

func openStores(ctx context.Context, lg *zap.Logger, cfg *Config) (*stores, error) {
	if cfg.Storage == StorageMemory {
		lg.Warn("Using in-memory storage, data is lost on restart")
		store := memory.New()
		if err := seed.LoadCatalog(ctx, store.Products(), time.Now()); err != nil {
			return nil, errors.Wrap(err, "seed catalog")
		}
		return &stores{
			tx:       store,
			products: store.Products(),
			users:    store.Users(),
			orders:   store.Orders(),
			outbox:   store.Outbox(),
			close:    func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &stores{
		tx:       postgres.NewTransactor(pool),
		products: postgres.NewProductRepository(pool),
		users:    postgres.NewUserRepository(pool),
		orders:   postgres.NewOrderRepository(pool),
		outbox:   postgres.NewOutboxRepository(pool),
		db:       pool,
		close:    pool.Close,
	}, nil
}

// backlog counts unpublished outbox events, reading at most limit+1 of them.
func (s *stores) backlog(limit int) func(ctx context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		events, err := s.outbox.Pending(ctx, limit+1)
		if err != nil {
			return 0, err
		}
		return len(events), nil
	}
}
