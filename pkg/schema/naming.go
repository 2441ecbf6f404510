package schema

import "strings"

// Table returns the table name of an entity referenced from a unit of the
// given module. Unqualified entities belong to the module.
//
//	Table("flowcell", "sequencer")              == "flowcell_sequencer"
//	Table("library_sample_shared", "sample.nucleicacidtype") == "sample_nucleicacidtype"
func Table(module, entity string) string {
	if i := strings.IndexByte(entity, '.'); i >= 0 {
		return strings.ToLower(entity[:i] + "_" + entity[i+1:])
	}
	return strings.ToLower(module + "_" + entity)
}

// Column returns the column name of a field, foreign keys are stored as `<name>_id`
func Column(name string, t FieldType) string {
	if t == ForeignKey {
		return strings.ToLower(name) + "_id"
	}
	return strings.ToLower(name)
}

// PreviousColumn returns the column a field was stored in before its type
// changed between foreign key and plain column
func PreviousColumn(name string, t FieldType) string {
	if t == ForeignKey {
		return Column(name, TextField)
	}
	return Column(name, ForeignKey)
}

// ColumnOf returns the column the operation changes
func ColumnOf(op Operation) string {
	switch o := op.(type) {
	case AddField:
		return Column(o.Name, o.Field.Type)
	case AlterField:
		return Column(o.Name, o.Field.Type)
	case AddForeignKey:
		return Column(o.Name, ForeignKey)
	}
	return strings.ToLower(op.FieldName())
}

// ConstraintName returns the name of the foreign-key constraint on a column
func ConstraintName(table, column string) string {
	name := table + "_" + column + "_fk"
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}
