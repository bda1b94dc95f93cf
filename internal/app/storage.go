package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
	"github.com/vladislavdragonenkov/camisetas/internal/storage/memory"
	mongostore "github.com/vladislavdragonenkov/camisetas/internal/storage/mongo"
	"github.com/vladislavdragonenkov/camisetas/internal/storage/postgres"
)

// storage: репозитории выбранного драйвера и функции управления подключением.
type storage struct {
	driver   string
	orders   domain.OrderRepository
	products domain.ProductRepository
	coupons  domain.CouponRepository
	outbox   domain.OutboxRepository

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

func initStorage(ctx context.Context, cfg StorageConfig, logger *log.Entry) (*storage, error) {
	switch cfg.Driver {
	case "", StorageDriverMemory:
		logger.Warn("используется in-memory хранилище, данные не переживут рестарт")
		return &storage{
			driver:   StorageDriverMemory,
			orders:   memory.NewOrderRepository(),
			products: memory.NewProductRepository(),
			coupons:  memory.NewCouponRepository(),
			outbox:   memory.NewOutboxRepository(),
			ping:     func(context.Context) error { return nil },
			close:    func(context.Context) error { return nil },
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("миграции PostgreSQL применены")
		}
		return &storage{
			driver:   StorageDriverPostgres,
			orders:   postgres.NewOrderRepository(store),
			products: postgres.NewProductRepository(store),
			coupons:  postgres.NewCouponRepository(store),
			outbox:   postgres.NewOutboxRepository(store),
			ping:     store.Ping,
			close:    func(context.Context) error { return store.Close() },
		}, nil

	case StorageDriverMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("mongo storage requires a URI")
		}
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		logger.WithField("database", cfg.MongoDatabase).Info("подключено к MongoDB")
		return &storage{
			driver:   StorageDriverMongo,
			orders:   mongostore.NewOrderRepository(store),
			products: mongostore.NewProductRepository(store),
			coupons:  mongostore.NewCouponRepository(store),
			outbox:   mongostore.NewOutboxRepository(store),
			ping:     store.Ping,
			close:    store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
