// Package app wires the service handlers from configuration. Every process
// binary builds its handlers through it.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pos-system/config"
	"pos-system/internal/cache"
	"pos-system/internal/database"
	"pos-system/internal/events"
	catalog "pos-system/internal/services/catalog/handler"
	identity "pos-system/internal/services/identity/handler"
	ledger "pos-system/internal/services/ledger/handler"
	loyalty "pos-system/internal/services/loyalty/handler"
	promotions "pos-system/internal/services/promotions/handler"
)

type App struct {
	DB    *gorm.DB
	Store *database.Store
	Redis redis.UniversalClient

	Identity   *identity.IdentityHandler
	Catalog    *catalog.CatalogHandler
	Promotions *promotions.PromotionsHandler
	Loyalty    *loyalty.LoyaltyHandler
	Ledger     *ledger.LedgerHandler
}

// Open connects to PostgreSQL, migrates the schema and builds the handlers.
// Redis is optional: without it product caching and event publishing are
// disabled and the process keeps running.
func Open(cfg config.Config) (*App, error) {
	db, err := database.NewConnection(cfg.DB.DSN, database.Options{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	rdb, err := config.NewRedis(cfg.Redis)
	if err != nil {
		logrus.WithError(err).Warn("Redis unavailable, caching and events disabled")
		rdb = nil
	}

	return New(database.NewStore(db, cfg.Ledger.TxMaxRetries), rdb, cfg.Ledger)
}

// New builds the handlers over an existing store. rdb may be nil.
func New(store *database.Store, rdb redis.UniversalClient, cfg config.LedgerConfig) (*App, error) {
	policy, err := promotions.ParseCapPolicy(cfg.CapPolicy)
	if err != nil {
		return nil, err
	}

	var (
		productCache cache.Cache      = cache.Nop{}
		publisher    events.Publisher = events.NopPublisher{}
	)
	if rdb != nil {
		productCache = cache.NewRedisCache(rdb)
		if cfg.EventsEnabled {
			publisher = events.NewRedisPublisher(rdb)
		}
	}

	a := &App{
		DB:         store.DB,
		Store:      store,
		Redis:      rdb,
		Identity:   identity.NewIdentityHandler(store),
		Catalog:    catalog.NewCatalogHandler(store, catalog.WithCache(productCache)),
		Promotions: promotions.NewPromotionsHandler(store, promotions.WithCapPolicy(policy)),
		Loyalty:    loyalty.NewLoyaltyHandler(store),
	}
	a.Ledger = ledger.NewLedgerHandler(store, a.Catalog, a.Promotions, a.Loyalty, ledger.WithPublisher(publisher))

	logrus.WithFields(logrus.Fields{
		"cap_policy":     policy,
		"tx_max_retries": store.MaxRetries,
		"events":         rdb != nil && cfg.EventsEnabled,
	}).Info("Services ready")
	return a, nil
}

func (a *App) PingDB(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *App) PingRedis(ctx context.Context) error {
	if a.Redis == nil {
		return fmt.Errorf("redis not configured")
	}
	return a.Redis.Ping(ctx).Err()
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis")
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
