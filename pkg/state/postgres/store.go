// Package postgres stores the schema state and the applied record in a
// PostgreSQL database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	cdb "github.com/contiamo/schema-migrator/pkg/db"
	cerrors "github.com/contiamo/schema-migrator/pkg/errors"
	"github.com/contiamo/schema-migrator/pkg/schema"
	"github.com/contiamo/schema-migrator/pkg/state"
	"github.com/contiamo/schema-migrator/pkg/tracing"
)

// DefaultRecordTable is the table the applied record is kept in
const DefaultRecordTable = "schema_migrations"

// undefinedTable is the postgres error code of a missing relation
const undefinedTable = "42P01"

// Options configures a Store
type Options struct {
	// RecordTable is the name of the applied record table, DefaultRecordTable when empty
	RecordTable string
	// MaxQueryLength trims the statements logged in the spans, 0 logs them untrimmed
	MaxQueryLength uint
}

// Store is a state.Store backed by PostgreSQL
type Store struct {
	tracing.Tracer
	db      *sql.DB
	options Options
}

// New creates a store on the given database
func New(db *sql.DB, options Options) *Store {
	if options.RecordTable == "" {
		options.RecordTable = DefaultRecordTable
	}
	return &Store{
		Tracer:  tracing.NewTracer("postgres", "Store"),
		db:      db,
		options: options,
	}
}

func (s *Store) builder(runner squirrel.BaseRunner) squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.
		PlaceholderFormat(squirrel.Dollar).
		RunWith(runner)
}

func (s *Store) traced(runner cdb.SQLDB) cdb.TraceableDB {
	tdb := cdb.WrapWithTracing(runner, "Store")
	if s.options.MaxQueryLength > 0 {
		tdb = tdb.WithTrimmedQuery(s.options.MaxQueryLength)
	}
	return tdb
}

// Lock takes a session level advisory lock keyed by the record table name on
// a dedicated connection and creates the record table when it does not exist
func (s *Store) Lock(ctx context.Context) (unlock func() error, err error) {
	span, ctx := s.StartSpan(ctx, "Lock")
	defer func() {
		s.FinishSpan(span, err)
	}()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "can not get a connection for the lock")
	}

	_, err = conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtext($1))", s.options.RecordTable)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "can not acquire the advisory lock")
	}

	unlock = func() error {
		defer conn.Close()
		// the lock must be released even when the run was canceled
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", s.options.RecordTable)
		return errors.Wrap(err, "can not release the advisory lock")
	}

	// runs on the lock connection
	_, err = conn.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	module text NOT NULL,
	name text NOT NULL,
	checksum text NOT NULL,
	applied_at timestamp with time zone NOT NULL DEFAULT now(),
	PRIMARY KEY (module, name)
)`, pq.QuoteIdentifier(s.options.RecordTable)))
	if err != nil {
		unlockErr := unlock()
		if unlockErr != nil {
			logrus.WithContext(ctx).WithError(unlockErr).Error("can not release the advisory lock")
		}
		return nil, errors.Wrap(err, "can not create the record table")
	}

	return unlock, nil
}

// Applied implements state.Store, a missing record table is an empty record
func (s *Store) Applied(ctx context.Context) (records []state.Record, err error) {
	span, ctx := s.StartSpan(ctx, "Applied")
	defer func() {
		s.FinishSpan(span, err)
	}()

	rows, err := s.builder(s.traced(s.db)).
		Select("module", "name", "checksum", "applied_at").
		From(pq.QuoteIdentifier(s.options.RecordTable)).
		OrderBy("module", "name").
		QueryContext(ctx)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
			return []state.Record{}, nil
		}
		return nil, errors.Wrap(err, "can not read the applied record")
	}
	defer rows.Close()

	records = []state.Record{}
	for rows.Next() {
		var r state.Record
		err = rows.Scan(&r.ID.Module, &r.ID.Name, &r.Checksum, &r.AppliedAt)
		if err != nil {
			return nil, errors.Wrap(err, "can not scan the applied record")
		}
		records = append(records, r)
	}
	return records, errors.Wrap(rows.Err(), "can not read the applied record")
}

// Begin implements state.Store
func (s *Store) Begin(ctx context.Context) (state.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "can not begin the unit transaction")
	}
	return &tx{store: s, sqlTx: sqlTx, runner: s.traced(sqlTx)}, nil
}

type tx struct {
	store  *Store
	sqlTx  *sql.Tx
	runner cdb.TraceableDB
}

func (t *tx) Commit() error {
	return t.sqlTx.Commit()
}

func (t *tx) Rollback() error {
	err := t.sqlTx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

func (t *tx) Record(ctx context.Context, unit *schema.Unit) error {
	_, err := t.store.builder(t.runner).
		Insert(pq.QuoteIdentifier(t.store.options.RecordTable)).
		Columns("module", "name", "checksum").
		Values(unit.ID.Module, unit.ID.Name, unit.Checksum()).
		ExecContext(ctx)
	return errors.Wrapf(err, "can not record %s", unit.ID)
}

func (t *tx) exec(ctx context.Context, stmts ...string) error {
	for _, stmt := range stmts {
		_, err := t.runner.ExecContext(ctx, stmt)
		if err != nil {
			return errors.Wrapf(err, "statement failed: %s", stmt)
		}
	}
	return nil
}

func (t *tx) Apply(ctx context.Context, unit schema.UnitID, op schema.Operation) error {
	table := schema.Table(unit.Module, op.Entity())
	column := schema.ColumnOf(op)

	create, err := createTable(table)
	if err != nil {
		return err
	}
	if err = t.exec(ctx, create); err != nil {
		return err
	}

	existing, err := t.column(ctx, table, column)
	if err != nil {
		return err
	}

	c := check{tx: t, unit: unit, op: op, table: table, column: column}
	var stmts []string
	switch o := op.(type) {
	case schema.AddField:
		stmts, err = c.addField(ctx, existing, o.Field, o.PreserveDefault)
	case schema.AlterField:
		if existing == nil {
			existing, err = c.rename(ctx, schema.PreviousColumn(o.Name, o.Field.Type))
			if err != nil {
				return err
			}
		}
		if existing == nil {
			logrus.WithContext(ctx).
				WithField("unit", unit.String()).
				WithField("column", table+"."+column).
				Warn("altering unknown column, it will be created")
			stmts, err = c.addField(ctx, nil, o.Field, o.PreserveDefault)
			break
		}
		stmts, err = c.alterField(ctx, o.Field, o.PreserveDefault)
	case schema.AddForeignKey:
		stmts, err = []string{}, c.addForeignKey(existing, o.OnDelete)
	default:
		err = fmt.Errorf("unsupported operation %T", op)
	}
	if err != nil {
		return err
	}
	if err = t.exec(ctx, stmts...); err != nil {
		return err
	}

	to, onDelete, ok := schema.ForeignKeyOf(op)
	if !ok {
		return nil
	}
	return c.constrain(ctx, to, onDelete)
}

// columnInfo describes an existing column
type columnInfo struct {
	Nullable bool
	DataType string
}

// column returns the catalog entry of the column, nil when it does not exist
func (t *tx) column(ctx context.Context, table, column string) (*columnInfo, error) {
	var nullable string
	info := &columnInfo{}
	err := t.store.builder(t.runner).
		Select("is_nullable", "data_type").
		From("information_schema.columns").
		Where(squirrel.Expr("table_schema = current_schema()")).
		Where(squirrel.Eq{"table_name": table, "column_name": column}).
		QueryRowContext(ctx).
		Scan(&nullable, &info.DataType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "can not read the catalog entry of %s.%s", table, column)
	}
	info.Nullable = nullable == "YES"
	return info, nil
}

// check runs the integrity checks of one operation before its statements
type check struct {
	tx     *tx
	unit   schema.UnitID
	op     schema.Operation
	table  string
	column string
}

func (c check) fail(reason string, args ...interface{}) error {
	return cerrors.IntegrityError{Unit: c.unit.String(), Operation: c.op.Describe(), Reason: fmt.Sprintf(reason, args...)}
}

func (c check) count(ctx context.Context, table string, filter squirrel.Sqlizer) (n int, err error) {
	q := c.tx.store.builder(c.tx.runner).
		Select("COUNT(*)").
		From(pq.QuoteIdentifier(table))
	if filter != nil {
		q = q.Where(filter)
	}
	err = q.QueryRowContext(ctx).Scan(&n)
	return n, errors.Wrapf(err, "can not count the rows of %s", table)
}

func (c check) addField(ctx context.Context, existing *columnInfo, f schema.Field, preserve bool) ([]string, error) {
	if existing != nil {
		return nil, c.fail("column %s.%s already exists", c.table, c.column)
	}

	if _, hasDefault := f.EffectiveDefault(); !f.Null && !hasDefault && !f.Type.IsAuto() {
		rows, err := c.count(ctx, c.table, nil)
		if err != nil {
			return nil, err
		}
		if rows > 0 {
			return nil, c.fail("column %s.%s is not nullable and has no default but the table has %d rows", c.table, c.column, rows)
		}
	}

	return addColumn(c.table, c.column, f, preserve)
}

func (c check) alterField(ctx context.Context, f schema.Field, preserve bool) ([]string, error) {
	col := pq.QuoteIdentifier(c.column)

	if _, hasDefault := f.EffectiveDefault(); !f.Null && !hasDefault && !f.PrimaryKey {
		nulls, err := c.count(ctx, c.table, squirrel.Expr(col+" IS NULL"))
		if err != nil {
			return nil, err
		}
		if nulls > 0 {
			return nil, c.fail("column %s.%s contains NULL values and has no default", c.table, c.column)
		}
	}

	if f.Type == schema.CharField && f.MaxLength > 0 {
		long, err := c.count(ctx, c.table, squirrel.Expr(fmt.Sprintf("char_length(%s::text) > ?", col), f.MaxLength))
		if err != nil {
			return nil, err
		}
		if long > 0 {
			return nil, c.fail("%d values of %s.%s are longer than %d", long, c.table, c.column, f.MaxLength)
		}
	}

	return alterColumn(c.table, c.column, f, preserve)
}

// rename moves the column previous to the column of the check, it returns nil
// when previous does not exist
func (c check) rename(ctx context.Context, previous string) (*columnInfo, error) {
	existing, err := c.tx.column(ctx, c.table, previous)
	if err != nil || existing == nil {
		return nil, err
	}

	stmts, err := renameColumn(c.table, previous, c.column)
	if err != nil {
		return nil, err
	}
	logrus.WithContext(ctx).
		WithField("unit", c.unit.String()).
		WithField("column", c.table+"."+previous).
		WithField("renamed", c.column).
		Info("field changed from or to a foreign key, its column is renamed")
	return existing, c.tx.exec(ctx, stmts...)
}

func (c check) addForeignKey(existing *columnInfo, onDelete schema.OnDelete) error {
	if existing == nil {
		return c.fail("column %s.%s does not exist", c.table, c.column)
	}
	if onDelete == schema.SetNull && !existing.Nullable {
		return c.fail("column %s.%s is not nullable, SET_NULL can not be used", c.table, c.column)
	}
	return nil
}

// constrain creates the referenced table, checks the existing references and
// replaces the foreign-key constraint of the column
func (c check) constrain(ctx context.Context, to string, onDelete schema.OnDelete) error {
	target := schema.Table(c.unit.Module, to)
	create, err := createTable(target)
	if err != nil {
		return err
	}
	if err = c.tx.exec(ctx, create); err != nil {
		return err
	}

	col := pq.QuoteIdentifier(c.column)
	missing, err := c.count(ctx, c.table, squirrel.Expr(fmt.Sprintf(
		"%s IS NOT NULL AND NOT EXISTS (SELECT 1 FROM %s r WHERE r.id = %s.%s)",
		col, pq.QuoteIdentifier(target), pq.QuoteIdentifier(c.table), col,
	)))
	if err != nil {
		return err
	}
	if missing > 0 {
		return c.fail("%d rows of %s.%s reference missing %s rows", missing, c.table, c.column, target)
	}

	stmts, err := foreignKey(c.table, c.column, target, onDelete)
	if err != nil {
		return err
	}
	return c.tx.exec(ctx, stmts...)
}
