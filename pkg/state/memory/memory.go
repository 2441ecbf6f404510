// Package memory implements the schema state in memory. It keeps rows so the
// integrity rules of the operations can be checked, and counts mutations.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	cerrors "github.com/contiamo/schema-migrator/pkg/errors"
	"github.com/contiamo/schema-migrator/pkg/schema"
	"github.com/contiamo/schema-migrator/pkg/state"
)

// Column is a column of a table
type Column struct {
	Name  string
	Field schema.Field
	// Default is the stored column default, nil when the column has none
	Default interface{}
}

// ForeignKey is a foreign-key constraint of a table
type ForeignKey struct {
	Name       string
	Column     string
	References string
	OnDelete   schema.OnDelete
}

// Table is a table of the schema state
type Table struct {
	Name        string
	Columns     map[string]Column
	ForeignKeys map[string]ForeignKey
	Rows        []map[string]interface{}
	nextID      int64
}

// ColumnNames returns the column names in alphabetical order
func (t Table) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func newTable(name string) *Table {
	return &Table{
		Name: name,
		Columns: map[string]Column{
			"id": {
				Name:  "id",
				Field: schema.Field{Type: schema.AutoField, PrimaryKey: true, AutoCreated: true, VerboseName: "ID"},
			},
		},
		ForeignKeys: map[string]ForeignKey{},
		nextID:      1,
	}
}

func (t *Table) clone() *Table {
	c := &Table{
		Name:        t.Name,
		Columns:     make(map[string]Column, len(t.Columns)),
		ForeignKeys: make(map[string]ForeignKey, len(t.ForeignKeys)),
		Rows:        make([]map[string]interface{}, 0, len(t.Rows)),
		nextID:      t.nextID,
	}
	for k, v := range t.Columns {
		c.Columns[k] = v
	}
	for k, v := range t.ForeignKeys {
		c.ForeignKeys[k] = v
	}
	for _, row := range t.Rows {
		r := make(map[string]interface{}, len(row))
		for k, v := range row {
			r[k] = v
		}
		c.Rows = append(c.Rows, r)
	}
	return c
}

type snapshot struct {
	tables  map[string]*Table
	records map[schema.UnitID]state.Record
}

func (s snapshot) clone() snapshot {
	c := snapshot{
		tables:  make(map[string]*Table, len(s.tables)),
		records: make(map[schema.UnitID]state.Record, len(s.records)),
	}
	for k, v := range s.tables {
		c.tables[k] = v.clone()
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	return c
}

// Store is an in-memory state.Store
type Store struct {
	mu   sync.Mutex
	lock chan struct{}
	now  func() time.Time

	current    snapshot
	mutations  int
	backfilled int
}

// New creates an empty store
func New() *Store {
	return &Store{
		lock: make(chan struct{}, 1),
		now:  time.Now,
		current: snapshot{
			tables:  map[string]*Table{},
			records: map[schema.UnitID]state.Record{},
		},
	}
}

// Lock implements state.Store
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	select {
	case s.lock <- struct{}{}:
		var once sync.Once
		return func() error {
			once.Do(func() { <-s.lock })
			return nil
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Applied implements state.Store
func (s *Store) Applied(ctx context.Context) ([]state.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]state.Record, 0, len(s.current.records))
	for _, r := range s.current.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out, nil
}

// Begin implements state.Store
func (s *Store) Begin(ctx context.Context) (state.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return &tx{store: s, work: s.current.clone(), now: s.now}, nil
}

// Table returns a copy of the table with the given name
func (s *Store) Table(name string) (Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.current.tables[name]
	if !ok {
		return Table{}, false
	}
	return *t.clone(), true
}

// Tables returns the table names in alphabetical order
func (s *Store) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.current.tables))
	for name := range s.current.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Insert adds a row to a table, the table is created when it does not exist.
// The id is assigned when the row has none.
func (s *Store) Insert(table string, row map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.current.ensure(table)
	r := make(map[string]interface{}, len(row)+1)
	for k, v := range row {
		r[k] = v
	}
	if _, ok := r["id"]; !ok {
		r["id"] = t.nextID
	}
	t.nextID++
	t.Rows = append(t.Rows, r)
}

// Mutations returns the number of committed operations and records
func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// Backfilled returns the number of existing rows committed operations filled with a default
func (s *Store) Backfilled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backfilled
}

func (s snapshot) ensure(name string) *Table {
	t, ok := s.tables[name]
	if !ok {
		t = newTable(name)
		s.tables[name] = t
	}
	return t
}

type tx struct {
	store *Store
	work  snapshot
	now   func() time.Time
	done  bool

	mutations  int
	backfilled int
}

func (t *tx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.current = t.work
	t.store.mutations += t.mutations
	t.store.backfilled += t.backfilled
	return nil
}

func (t *tx) Rollback() error {
	t.done = true
	return nil
}

func (t *tx) Record(ctx context.Context, unit *schema.Unit) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	if _, ok := t.work.records[unit.ID]; ok {
		return fmt.Errorf("%s is already applied", unit.ID)
	}
	t.work.records[unit.ID] = state.Record{ID: unit.ID, Checksum: unit.Checksum(), AppliedAt: t.now()}
	t.mutations++
	return nil
}

func (t *tx) Apply(ctx context.Context, unit schema.UnitID, op schema.Operation) (err error) {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	table := t.work.ensure(schema.Table(unit.Module, op.Entity()))
	switch o := op.(type) {
	case schema.AddField:
		err = t.addField(unit, table, o.Name, o.Field, o.PreserveDefault, op)
	case schema.AlterField:
		err = t.alterField(unit, table, o, op)
	case schema.AddForeignKey:
		err = t.addForeignKey(unit, table, o, op)
	default:
		err = fmt.Errorf("unsupported operation %T", op)
	}
	if err != nil {
		return err
	}

	t.mutations++
	return nil
}

func integrity(unit schema.UnitID, op schema.Operation, reason string, args ...interface{}) error {
	return cerrors.IntegrityError{Unit: unit.String(), Operation: op.Describe(), Reason: fmt.Sprintf(reason, args...)}
}

func storedDefault(f schema.Field, preserve bool) interface{} {
	if preserve {
		return f.Default
	}
	return nil
}

func (t *tx) addField(unit schema.UnitID, table *Table, name string, f schema.Field, preserve bool, op schema.Operation) error {
	column := schema.Column(name, f.Type)
	if _, ok := table.Columns[column]; ok {
		return integrity(unit, op, "column %s.%s already exists", table.Name, column)
	}

	def, hasDefault := f.EffectiveDefault()
	if len(table.Rows) > 0 && !f.Null && !hasDefault && !f.Type.IsAuto() {
		return integrity(unit, op, "column %s.%s is not nullable and has no default but the table has %d rows",
			table.Name, column, len(table.Rows))
	}

	for i, row := range table.Rows {
		switch {
		case f.Type.IsAuto():
			row[column] = int64(i + 1)
		case hasDefault:
			row[column] = def
		default:
			row[column] = nil
		}
	}
	if hasDefault && !f.Null {
		t.backfilled += len(table.Rows)
	}

	table.Columns[column] = Column{Name: column, Field: f, Default: storedDefault(f, preserve)}

	if f.Type == schema.ForeignKey {
		return t.constrain(unit, table, column, f.To, f.OnDelete, op)
	}
	return nil
}

func (t *tx) alterField(unit schema.UnitID, table *Table, o schema.AlterField, op schema.Operation) error {
	column := schema.Column(o.Name, o.Field.Type)
	_, ok := table.Columns[column]
	if !ok {
		_, ok = t.renameColumn(table, schema.PreviousColumn(o.Name, o.Field.Type), column)
	}
	if !ok {
		logrus.WithField("unit", unit.String()).
			WithField("column", table.Name+"."+column).
			Warn("altering unknown column, it will be created")
		return t.addField(unit, table, o.Name, o.Field, o.PreserveDefault, op)
	}

	def, hasDefault := o.Field.EffectiveDefault()
	for _, row := range table.Rows {
		value := row[column]
		if value == nil && !o.Field.Null {
			if !hasDefault {
				return integrity(unit, op, "column %s.%s contains NULL values and has no default", table.Name, column)
			}
			row[column] = def
			t.backfilled++
			continue
		}
		if s, isString := value.(string); isString && o.Field.MaxLength > 0 && len(s) > o.Field.MaxLength {
			return integrity(unit, op, "value %q of %s.%s is longer than %d", s, table.Name, column, o.Field.MaxLength)
		}
	}

	table.Columns[column] = Column{Name: column, Field: o.Field, Default: storedDefault(o.Field, o.PreserveDefault)}

	if o.Field.Type == schema.ForeignKey {
		return t.constrain(unit, table, column, o.Field.To, o.Field.OnDelete, op)
	}
	return nil
}

// renameColumn moves the values of column from to column to and drops the
// foreign key of from. It returns false when from does not exist.
func (t *tx) renameColumn(table *Table, from, to string) (Column, bool) {
	existing, ok := table.Columns[from]
	if !ok {
		return Column{}, false
	}

	for _, row := range table.Rows {
		row[to] = row[from]
		delete(row, from)
	}
	delete(table.Columns, from)
	delete(table.ForeignKeys, schema.ConstraintName(table.Name, from))

	existing.Name = to
	table.Columns[to] = existing
	return existing, true
}

func (t *tx) addForeignKey(unit schema.UnitID, table *Table, o schema.AddForeignKey, op schema.Operation) error {
	column := schema.Column(o.Name, schema.ForeignKey)
	existing, ok := table.Columns[column]
	if !ok {
		return integrity(unit, op, "column %s.%s does not exist", table.Name, column)
	}
	if o.OnDelete == schema.SetNull && !existing.Field.Null {
		return integrity(unit, op, "column %s.%s is not nullable, SET_NULL can not be used", table.Name, column)
	}
	return t.constrain(unit, table, column, o.To, o.OnDelete, op)
}

// constrain replaces the foreign-key constraint of the column, the referenced
// table is created when it does not exist
func (t *tx) constrain(unit schema.UnitID, table *Table, column, to string, onDelete schema.OnDelete, op schema.Operation) error {
	target := t.work.ensure(schema.Table(unit.Module, to))

	ids := make(map[interface{}]bool, len(target.Rows))
	for _, row := range target.Rows {
		ids[normalize(row["id"])] = true
	}
	for _, row := range table.Rows {
		value := row[column]
		if value == nil {
			continue
		}
		if !ids[normalize(value)] {
			return integrity(unit, op, "%s.%s references missing %s row %v", table.Name, column, target.Name, value)
		}
	}

	name := schema.ConstraintName(table.Name, column)
	table.ForeignKeys[name] = ForeignKey{
		Name:       name,
		Column:     column,
		References: target.Name,
		OnDelete:   onDelete,
	}
	return nil
}

// normalize lets ids inserted as int compare equal to the int64 ids assigned by the store
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	}
	return v
}
