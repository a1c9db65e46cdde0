package ledger

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// The database-backed ledgers run against real servers when
// QMSLIC_TEST_POSTGRES_DSN or QMSLIC_TEST_MONGO_URI is set.

func TestPostgresLedger(t *testing.T) {
	dsn := os.Getenv("QMSLIC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QMSLIC_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	table := fmt.Sprintf("qms_license_test_%d", time.Now().UnixNano())
	l, err := NewPostgresLedger(ctx, pool, WithTableName(table))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+table)
	})

	runLedgerTests(t, l)
}

func TestMongoLedger(t *testing.T) {
	uri := os.Getenv("QMSLIC_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("QMSLIC_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	db := client.Database("qms_license_test")
	collection := fmt.Sprintf("issuances_%d", time.Now().UnixNano())
	l, err := NewMongoLedger(ctx, db, WithCollectionName(collection))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Collection(collection).Drop(context.Background())
	})

	runLedgerTests(t, l)
}
