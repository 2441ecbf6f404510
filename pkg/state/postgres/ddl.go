package postgres

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/lib/pq"

	"github.com/contiamo/schema-migrator/pkg/schema"
)

const ddlTemplates = `
{{define "create_table"}}CREATE TABLE IF NOT EXISTS {{ident .Table}} ({{ident "id"}} integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY){{end}}

{{define "add_column"}}ALTER TABLE {{ident .Table}} ADD COLUMN {{ident .Column}} {{.Type}}
{{- if .Identity}} GENERATED BY DEFAULT AS IDENTITY{{else if .Default}} DEFAULT {{.Default}}{{end}}
{{- if not .Null}} NOT NULL{{end}}{{end}}

{{define "alter_type"}}ALTER TABLE {{ident .Table}} ALTER COLUMN {{ident .Column}} TYPE {{.Type}} USING {{ident .Column}}::{{.Type}}{{end}}

{{define "rename_column"}}ALTER TABLE {{ident .Table}} RENAME COLUMN {{ident .Column}} TO {{ident .References}}{{end}}

{{define "backfill"}}UPDATE {{ident .Table}} SET {{ident .Column}} = {{.Default}} WHERE {{ident .Column}} IS NULL{{end}}

{{define "nullability"}}ALTER TABLE {{ident .Table}} ALTER COLUMN {{ident .Column}} {{if .Null}}DROP{{else}}SET{{end}} NOT NULL{{end}}

{{define "set_default"}}ALTER TABLE {{ident .Table}} ALTER COLUMN {{ident .Column}} SET DEFAULT {{.Default}}{{end}}

{{define "drop_default"}}ALTER TABLE {{ident .Table}} ALTER COLUMN {{ident .Column}} DROP DEFAULT{{end}}

{{define "drop_constraint"}}ALTER TABLE {{ident .Table}} DROP CONSTRAINT IF EXISTS {{ident .Constraint}}{{end}}

{{define "check_positive"}}ALTER TABLE {{ident .Table}} ADD CONSTRAINT {{ident .Constraint}} CHECK ({{ident .Column}} >= 0){{end}}

{{define "unique"}}ALTER TABLE {{ident .Table}} ADD CONSTRAINT {{ident .Constraint}} UNIQUE ({{ident .Column}}){{end}}

{{define "foreign_key"}}ALTER TABLE {{ident .Table}} ADD CONSTRAINT {{ident .Constraint}} FOREIGN KEY ({{ident .Column}}) REFERENCES {{ident .References}} ({{ident "id"}}) ON DELETE {{.OnDelete}} DEFERRABLE INITIALLY DEFERRED{{end}}
`

var ddl = template.Must(template.New("ddl").Funcs(template.FuncMap{
	"ident": pq.QuoteIdentifier,
}).Parse(ddlTemplates))

// statement holds the values the DDL templates are rendered with
type statement struct {
	Table      string
	Column     string
	Type       string
	Default    string
	Null       bool
	Identity   bool
	Constraint string
	References string
	OnDelete   string
}

var onDeleteActions = map[schema.OnDelete]string{
	schema.Cascade:    "CASCADE",
	schema.SetNull:    "SET NULL",
	schema.SetDefault: "SET DEFAULT",
	schema.Protect:    "RESTRICT",
	schema.Restrict:   "RESTRICT",
	schema.DoNothing:  "NO ACTION",
}

// columnType returns the postgres type of a field
func columnType(f schema.Field) (string, error) {
	switch f.Type {
	case schema.AutoField, schema.IntegerField, schema.PositiveIntegerField:
		return "integer", nil
	case schema.BigAutoField, schema.ForeignKey:
		return "bigint", nil
	case schema.SmallIntegerField, schema.PositiveSmallIntegerField:
		return "smallint", nil
	case schema.CharField:
		return fmt.Sprintf("varchar(%d)", f.MaxLength), nil
	case schema.TextField:
		return "text", nil
	case schema.BooleanField:
		return "boolean", nil
	case schema.DateTimeField:
		return "timestamp with time zone", nil
	}
	return "", fmt.Errorf("unsupported field type %q", f.Type)
}

// literal renders a default value as a SQL literal
func literal(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "NULL", nil
	case string:
		return pq.QuoteLiteral(v), nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return fmt.Sprintf("%d", v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case time.Time:
		return pq.QuoteLiteral(v.UTC().Format(time.RFC3339Nano)), nil
	}
	return "", fmt.Errorf("unsupported default %v of type %T", value, value)
}

func render(name string, data statement) (string, error) {
	var b strings.Builder
	err := ddl.ExecuteTemplate(&b, name, data)
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

type renderer struct {
	stmts []string
	err   error
}

func (r *renderer) add(name string, data statement) {
	if r.err != nil {
		return
	}
	var stmt string
	stmt, r.err = render(name, data)
	r.stmts = append(r.stmts, stmt)
}

func (r *renderer) result() ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.stmts, nil
}

func checkName(table, column string) string {
	return constraintName(table, column, "check")
}

func uniqueName(table, column string) string {
	return constraintName(table, column, "uniq")
}

func constraintName(table, column, suffix string) string {
	name := table + "_" + column + "_" + suffix
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// createTable creates the implicit table of an entity
func createTable(table string) (string, error) {
	return render("create_table", statement{Table: table})
}

// addColumn adds a column. Existing rows receive the effective default of the
// field, the stored default is dropped afterwards unless preserve is set.
func addColumn(table, column string, f schema.Field, preserve bool) ([]string, error) {
	typ, err := columnType(f)
	if err != nil {
		return nil, err
	}

	data := statement{Table: table, Column: column, Type: typ, Null: f.Null, Identity: f.Type.IsAuto()}
	def, hasDefault := f.EffectiveDefault()
	if hasDefault && !data.Identity {
		data.Default, err = literal(def)
		if err != nil {
			return nil, err
		}
	}

	r := &renderer{}
	r.add("add_column", data)
	if data.Default != "" && !(preserve && f.HasDefault()) {
		r.add("drop_default", data)
	}
	constraints(r, data, f)
	return r.result()
}

// alterColumn changes an existing column to the field. NULL values are
// replaced with the effective default when the column becomes non-nullable.
func alterColumn(table, column string, f schema.Field, preserve bool) ([]string, error) {
	typ, err := columnType(f)
	if err != nil {
		return nil, err
	}

	data := statement{Table: table, Column: column, Type: typ, Null: f.Null}
	def, hasDefault := f.EffectiveDefault()
	if hasDefault {
		data.Default, err = literal(def)
		if err != nil {
			return nil, err
		}
	}

	r := &renderer{}
	r.add("drop_constraint", statement{Table: table, Constraint: schema.ConstraintName(table, column)})
	r.add("alter_type", data)
	if !f.Type.IsAuto() && !f.PrimaryKey {
		if !f.Null && data.Default != "" {
			r.add("backfill", data)
		}
		r.add("nullability", data)
		if preserve && f.HasDefault() {
			r.add("set_default", data)
		} else {
			r.add("drop_default", data)
		}
	}
	r.add("drop_constraint", statement{Table: table, Constraint: checkName(table, column)})
	r.add("drop_constraint", statement{Table: table, Constraint: uniqueName(table, column)})
	constraints(r, data, f)
	return r.result()
}

// renameColumn drops the constraints of column from and renames it to to
func renameColumn(table, from, to string) ([]string, error) {
	r := &renderer{}
	r.add("drop_constraint", statement{Table: table, Constraint: schema.ConstraintName(table, from)})
	r.add("drop_constraint", statement{Table: table, Constraint: checkName(table, from)})
	r.add("drop_constraint", statement{Table: table, Constraint: uniqueName(table, from)})
	r.add("rename_column", statement{Table: table, Column: from, References: to})
	return r.result()
}

// constraints adds the check, unique and foreign-key constraints of a field
func constraints(r *renderer, data statement, f schema.Field) {
	if f.Type.IsPositive() {
		data.Constraint = checkName(data.Table, data.Column)
		r.add("check_positive", data)
	}
	if f.Unique && !f.PrimaryKey {
		data.Constraint = uniqueName(data.Table, data.Column)
		r.add("unique", data)
	}
}

// foreignKey replaces the foreign-key constraint of a column
func foreignKey(table, column, references string, onDelete schema.OnDelete) ([]string, error) {
	action, ok := onDeleteActions[onDelete]
	if !ok {
		return nil, fmt.Errorf("unsupported on_delete %q", onDelete)
	}

	constraint := schema.ConstraintName(table, column)
	r := &renderer{}
	r.add("drop_constraint", statement{Table: table, Constraint: constraint})
	r.add("foreign_key", statement{
		Table:      table,
		Column:     column,
		Constraint: constraint,
		References: references,
		OnDelete:   action,
	})
	return r.result()
}

// Render returns the statements of an operation of the given module, assuming
// that the columns it adds do not exist yet and the columns it alters do.
// The referenced tables are created when they do not exist.
func Render(module string, op schema.Operation) ([]string, error) {
	table := schema.Table(module, op.Entity())
	column := schema.ColumnOf(op)

	create, err := createTable(table)
	if err != nil {
		return nil, err
	}
	out := []string{create}

	var stmts []string
	switch o := op.(type) {
	case schema.AddField:
		stmts, err = addColumn(table, column, o.Field, o.PreserveDefault)
	case schema.AlterField:
		stmts, err = alterColumn(table, column, o.Field, o.PreserveDefault)
	case schema.AddForeignKey:
		stmts = []string{}
	default:
		err = fmt.Errorf("unsupported operation %T", op)
	}
	if err != nil {
		return nil, err
	}
	out = append(out, stmts...)

	to, onDelete, ok := schema.ForeignKeyOf(op)
	if !ok {
		return out, nil
	}
	target := schema.Table(module, to)
	create, err = createTable(target)
	if err != nil {
		return nil, err
	}
	fk, err := foreignKey(table, column, target, onDelete)
	if err != nil {
		return nil, err
	}
	return append(append(out, create), fk...), nil
}
