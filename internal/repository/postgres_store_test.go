package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-qc-inspections/internal/platform/database"
)

func getTestDB(t *testing.T) *database.DB {
	dsn := os.Getenv("QC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("QC_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("Postgres not available: %v", err)
	}

	migration, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_inspections.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(migration))
	require.NoError(t, err)

	t.Cleanup(pool.Close)
	return &database.DB{Pool: pool}
}

func TestPostgresStore(t *testing.T) {
	db := getTestDB(t)

	runStoreContract(t, func(t *testing.T) InspectionStore {
		ctx := context.Background()
		// The audit log rejects DELETE, so the tables are truncated instead.
		_, err := db.Exec(ctx, `TRUNCATE qc_inspection_audit_log, qc_inspections`)
		require.NoError(t, err)
		return NewPostgresStore(db)
	})
}
