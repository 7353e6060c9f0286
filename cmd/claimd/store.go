package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/claim/store"
	bunstore "github.com/xraph/claim/store/bun"
	"github.com/xraph/claim/store/memory"
	mongostore "github.com/xraph/claim/store/mongo"
	"github.com/xraph/claim/store/postgres"
	redisstore "github.com/xraph/claim/store/redis"
)

// defaultSQLiteDSN is used for CLAIM_STORE=sqlite when CLAIM_DSN is unset.
const defaultSQLiteDSN = "file:claim.db"

// openStore connects the backend named by cfg.Store. The returned cleanup
// releases every connection opened here, including when run exits before
// the runner starts; call it after the runner has stopped.
func openStore(ctx context.Context, cfg config, logger *slog.Logger) (store.Store, func(), error) {
	noop := func() {}

	switch cfg.Store {
	case "memory":
		return memory.New(), noop, nil

	case "postgres":
		s, err := postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		// pgxpool.Close is idempotent, so this is safe after Runner.Stop.
		return s, func() { _ = s.Close() }, nil

	case "bun":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), func() { _ = db.Close() }, nil

	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows one writer; serialize through a single connection.
		sqldb.SetMaxOpenConns(1)
		db := bun.NewDB(sqldb, sqlitedialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), func() { _ = db.Close() }, nil

	case "redis":
		opts, err := goredis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		return redisstore.New(client, redisstore.WithLogger(logger)), func() { _ = client.Close() }, nil

	case "mongo":
		client, err := mongod.Connect(options.Client().ApplyURI(cfg.DSN))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		cleanup := func() { _ = client.Disconnect(context.Background()) }
		return mongostore.New(client.Database(cfg.Database), mongostore.WithLogger(logger)), cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q (want memory, postgres, bun, sqlite, redis or mongo)", cfg.Store)
	}
}
