// Package test provides throwaway PostgreSQL databases for integration tests.
// Tests are skipped when no server is reachable, configure the server with the
// `SCHEMA_TEST_DB_*` variables of config.Database.
package test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/caarlos0/env/v11"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/contiamo/schema-migrator/pkg/config"
	cdb "github.com/contiamo/schema-migrator/pkg/db"
)

const defaultDBName = "postgres" // in postgres the default DB is `postgres`

// EqualCount asserts that the count of rows matches the expected value given the table and WHERE filter.
// Note that this is a simple COUNT of rows in a single table. More complex queries should be constructed by hand.
func EqualCount(t *testing.T, db *sql.DB, expected int, table string, filter squirrel.Sqlizer) int {
	var count int
	err := squirrel.StatementBuilder.
		PlaceholderFormat(squirrel.Dollar).
		Select("COUNT(*)").
		From(pq.QuoteIdentifier(table)).
		Where(filter).
		RunWith(db).
		Scan(&count)
	require.NoError(t, err)
	require.Equal(t, expected, count)

	return count
}

// GetDatabase creates an empty database with a unique name and drops it when
// the test finishes. The test is skipped when the server can not be reached.
func GetDatabase(t *testing.T) (name string, testDB *sql.DB) {
	t.Helper()

	cfg := config.Database{}
	err := env.ParseWithOptions(&cfg, env.Options{Prefix: "SCHEMA_TEST_DB_"})
	require.NoError(t, err)
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Username == "" {
		cfg.Username = "postgres"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg.Name = defaultDBName
	admin, err := open(ctx, cfg)
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	defer admin.Close()

	name = cdb.GenerateSQLName()
	_, err = admin.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(name)))
	require.NoError(t, err)

	cfg.Name = name
	testDB, err = open(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		testDB.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		cfg.Name = defaultDBName
		admin, err := open(ctx, cfg)
		if err != nil {
			t.Logf("can not drop test database %s: %v", name, err)
			return
		}
		defer admin.Close()
		_, err = admin.ExecContext(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", pq.QuoteIdentifier(name)))
		if err != nil {
			t.Logf("can not drop test database %s: %v", name, err)
		}
	})

	return name, testDB
}

func open(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.DriverName, connStr)
	if err != nil {
		return nil, err
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
