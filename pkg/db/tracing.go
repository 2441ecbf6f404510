package db

import (
	"context"
	"database/sql"

	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/contiamo/schema-migrator/pkg/tracing"
)

// SQLDB is the standard SQL database interface
// which the standard library should have but it does not.
// It is implemented by *sql.DB and *sql.Tx and matches squirrel.StdSqlCtx,
// so a SQLDB can be passed to squirrel RunWith.
type SQLDB interface {
	Query(string, ...interface{}) (*sql.Rows, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRow(string, ...interface{}) *sql.Row
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
	Exec(string, ...interface{}) (sql.Result, error)
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
}

// TraceableDB is a SQLDB that creates a span and a debug log entry per statement
type TraceableDB interface {
	SQLDB
	tracing.Tracer
	// WithTrimmedQuery sets the max length of the SQL statement logged in the span.
	// `maxLength == 0` means no statement is logged,
	// `maxLength > 0` logs `query[:maxLength]+"..."` for longer statements.
	WithTrimmedQuery(maxLength uint) TraceableDB
}

// WrapWithTracing wraps a SQL database or transaction with open tracing and
// logging, component names the owner of the statements in the spans
func WrapWithTracing(db SQLDB, component string) TraceableDB {
	return &traceableDB{
		SQLDB:          db,
		Tracer:         tracing.NewTracer("db", component),
		maxQueryLength: -1,
	}
}

type traceableDB struct {
	SQLDB
	tracing.Tracer
	maxQueryLength int
}

func (d traceableDB) logQuery(ctx context.Context, span opentracing.Span, method, query string) {
	logrus.WithContext(ctx).WithField("sql_method", method).Debug(query)

	// `0` means no logging
	if d.maxQueryLength == 0 {
		return
	}

	// `-1` means, no trimming
	if d.maxQueryLength > 0 && len(query) > d.maxQueryLength {
		query = query[:d.maxQueryLength] + "..."
	}
	span.LogKV("sql", query)
}

func (d traceableDB) WithTrimmedQuery(maxLength uint) TraceableDB {
	d.maxQueryLength = int(maxLength)
	return &d
}

func (d traceableDB) ExecContext(ctx context.Context, query string, args ...interface{}) (result sql.Result, err error) {
	span, ctx := d.StartSpan(ctx, "ExecContext")
	defer func() {
		d.FinishSpan(span, err)
	}()

	d.logQuery(ctx, span, "ExecContext", query)
	return d.SQLDB.ExecContext(ctx, query, args...)
}

func (d traceableDB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return d.ExecContext(context.Background(), query, args...)
}

func (d traceableDB) QueryContext(ctx context.Context, query string, args ...interface{}) (rows *sql.Rows, err error) {
	span, ctx := d.StartSpan(ctx, "QueryContext")
	defer func() {
		d.FinishSpan(span, err)
	}()

	d.logQuery(ctx, span, "QueryContext", query)
	//nolint: sqlclosecheck // the caller closes the rows
	return d.SQLDB.QueryContext(ctx, query, args...)
}

func (d traceableDB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return d.QueryContext(context.Background(), query, args...)
}

func (d traceableDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	span, ctx := d.StartSpan(ctx, "QueryRowContext")
	defer d.FinishSpan(span, nil)

	d.logQuery(ctx, span, "QueryRowContext", query)
	return d.SQLDB.QueryRowContext(ctx, query, args...)
}

func (d traceableDB) QueryRow(query string, args ...interface{}) *sql.Row {
	return d.QueryRowContext(context.Background(), query, args...)
}
