package db

import (
	"context"
	"database/sql"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/contiamo/schema-migrator/pkg/config"
	"github.com/contiamo/schema-migrator/pkg/tracing"
)

// Open opens a connection to a database and retries until it can ping it,
// cfg.ConnectTimeout passes or ctx is done.
// The users must import all the necessary drivers before calling this function.
func Open(ctx context.Context, cfg config.Database) (db *sql.DB, err error) {
	tracer := tracing.NewTracer("db", "Connection")
	span, ctx := tracer.StartSpan(ctx, "Open")
	defer func() {
		tracer.FinishSpan(span, err)
	}()

	span.SetTag("host", cfg.GetHost())
	span.SetTag("port", cfg.GetPort())
	span.SetTag("name", cfg.Name)
	span.SetTag("username", cfg.Username)

	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	logger := logrus.WithContext(ctx).
		WithField("method", "Open").
		WithField("host", cfg.GetHost()).
		WithField("name", cfg.Name)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.ConnectTimeout

	err = backoff.Retry(func() error {
		db, err = sql.Open(cfg.DriverName, connStr)
		if err != nil {
			// an unknown driver or a malformed connection string does not heal
			logger.WithError(err).Error("failed to open db connection")
			return backoff.Permanent(err)
		}

		err = db.PingContext(ctx)
		if err != nil {
			span.LogKV("error", err.Error())
			logger.WithError(err).Warn("failed to ping target db")
			_ = db.Close()
			return err
		}

		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.PoolSize)
	return db, nil
}
