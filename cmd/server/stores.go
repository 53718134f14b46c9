package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/stocker/internal/config"
	"github.com/atmx/stocker/internal/store"
)

// openLedgerStore picks Postgres, then SQLite, then memory. The returned
// cleanup closes whatever was opened.
func openLedgerStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.LedgerStore, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		log.Info("connected to PostgreSQL")
		return store.NewPostgresStore(pool), pool.Close, nil

	case cfg.DatabasePath != "":
		st, err := store.OpenSQLite(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using SQLite ledger", "path", cfg.DatabasePath)
		return st, func() { st.Close() }, nil

	default:
		log.Warn("DATABASE_URL and DATABASE_PATH not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), func() {}, nil
	}
}

// openNameCache uses Redis when configured and a process-local map otherwise.
func openNameCache(cfg *config.Config, log *slog.Logger) (store.NameCache, func(), error) {
	if cfg.RedisURL == "" {
		return store.NewMemoryNameCache(), func() {}, nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	log.Info("Redis name cache enabled", "ttl", cfg.NameCacheTTL.String())
	return store.NewRedisNameCache(rdb, cfg.NameCacheTTL), func() { rdb.Close() }, nil
}
