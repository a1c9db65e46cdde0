package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/asvo-qms/qms-license-sdk/internal/config"
	"github.com/asvo-qms/qms-license-sdk/qmslicense/ledger"
)

// ledgerOpener returns the configured ledger, or nil when none is
// configured. The returned func releases the connection.
type ledgerOpener func(ctx context.Context, cfg config.LedgerConfig) (ledger.Ledger, func(), error)

func openLedger(ctx context.Context, cfg config.LedgerConfig) (ledger.Ledger, func(), error) {
	switch {
	case cfg.PostgresDSN != "":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		l, err := ledger.NewPostgresLedger(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return l, pool.Close, nil

	case cfg.MongoURI != "":
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		l, err := ledger.NewMongoLedger(ctx, client.Database(cfg.MongoDatabase))
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return l, closeFn, nil

	default:
		return nil, func() {}, nil
	}
}
