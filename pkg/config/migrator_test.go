package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cerrors "github.com/contiamo/schema-migrator/pkg/errors"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "./migrations", cfg.Definitions)
		require.Equal(t, "schema_migrations", cfg.RecordTable)
		require.Equal(t, 5*time.Minute, cfg.LockTimeout)
		require.Equal(t, "postgres", cfg.Database.DriverName)
		require.Equal(t, 4, cfg.Database.PoolSize)
		require.Equal(t, time.Minute, cfg.Database.ConnectTimeout)
		require.Equal(t, Log{Level: "info", Format: "text"}, cfg.Log)
		require.Equal(t, "schema-migrator", cfg.Tracing.ServiceName)
		require.False(t, cfg.StrictDependencies)
	})

	t.Run("reads the prefixed environment", func(t *testing.T) {
		t.Setenv("SCHEMA_DB_HOST", "db.lab.internal")
		t.Setenv("SCHEMA_DB_PORT", "6432")
		t.Setenv("SCHEMA_DB_NAME", "parkour")
		t.Setenv("SCHEMA_DB_PASSWORD_PATH", "./testdata/password")
		t.Setenv("SCHEMA_LOG_LEVEL", "debug")
		t.Setenv("SCHEMA_TRACING_SERVER", "jaeger:6831")
		t.Setenv("SCHEMA_STRICT_DEPENDENCIES", "true")
		t.Setenv("SCHEMA_DEFINITIONS", "/srv/migrations")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "db.lab.internal", cfg.Database.Host)
		require.Equal(t, uint32(6432), cfg.Database.Port)
		require.Equal(t, "parkour", cfg.Database.Name)
		require.Equal(t, "debug", cfg.Log.Level)
		require.Equal(t, "jaeger:6831", cfg.Tracing.Server)
		require.True(t, cfg.StrictDependencies)
		require.Equal(t, "/srv/migrations", cfg.Definitions)

		password, err := cfg.Database.GetPassword()
		require.NoError(t, err)
		require.Equal(t, "password", password)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		t.Setenv("SCHEMA_RECORD_TABLE", "schema-migrations")
		t.Setenv("SCHEMA_LOG_FORMAT", "xml")

		_, err := Load()
		require.Error(t, err)

		keys := []string{}
		for _, fe := range cerrors.FieldErrors(err) {
			keys = append(keys, fe.Key)
		}
		require.Equal(t, []string{"log.format", "recordTable"}, keys)
	})

	t.Run("rejects a pool of one connection", func(t *testing.T) {
		t.Setenv("SCHEMA_DB_POOL_SIZE", "1")

		_, err := Load()
		require.Error(t, err)

		keys := []string{}
		for _, fe := range cerrors.FieldErrors(err) {
			keys = append(keys, fe.Key)
		}
		require.Equal(t, []string{"database.poolSize"}, keys)
	})

	t.Run("accepts an unlimited pool", func(t *testing.T) {
		t.Setenv("SCHEMA_DB_POOL_SIZE", "0")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, 0, cfg.Database.PoolSize)
	})

	t.Run("rejects malformed durations", func(t *testing.T) {
		t.Setenv("SCHEMA_LOCK_TIMEOUT", "soon")
		_, err := Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "can not parse the configuration")
	})
}
