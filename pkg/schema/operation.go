package schema

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	cvalidation "github.com/contiamo/schema-migrator/pkg/validation"
)

// Kind tags the variant of an Operation
type Kind string

const (
	KindAddField      Kind = "add_field"
	KindAlterField    Kind = "alter_field"
	KindAddForeignKey Kind = "add_foreign_key"
)

// Operation is a single schema change directive of a unit.
// The set of implementations is closed: AddField, AlterField and AddForeignKey.
type Operation interface {
	// Kind returns the variant tag
	Kind() Kind
	// Entity returns the target model, either `model` or `module.model`
	Entity() string
	// FieldName returns the name of the changed field
	FieldName() string
	// Describe returns a short human readable description, e.g. `add field flowcell.run_name`
	Describe() string
	// Validate checks the definition of the operation
	Validate() error

	isOperation()
}

// AddField adds a column to an entity.
//
// When PreserveDefault is false the Default is only used to backfill the rows
// that already exist, the column is left without a stored default afterwards.
type AddField struct {
	Model           string `json:"model"`
	Name            string `json:"name"`
	Field           Field  `json:"field"`
	PreserveDefault bool   `json:"preserve_default"`
}

func (AddField) isOperation()        {}
func (AddField) Kind() Kind          { return KindAddField }
func (o AddField) Entity() string    { return o.Model }
func (o AddField) FieldName() string { return o.Name }

func (o AddField) Describe() string {
	return fmt.Sprintf("add field %s.%s", o.Model, o.Name)
}

// Validate implements validation.Validatable
func (o AddField) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Model, validation.Required, cvalidation.Identifier),
		validation.Field(&o.Name, validation.Required, cvalidation.Identifier),
		validation.Field(&o.Field),
	)
}

// AlterField changes the type descriptor of an existing column: type,
// nullability, default or foreign-key target.
type AlterField struct {
	Model           string `json:"model"`
	Name            string `json:"name"`
	Field           Field  `json:"field"`
	PreserveDefault bool   `json:"preserve_default"`
}

func (AlterField) isOperation()        {}
func (AlterField) Kind() Kind          { return KindAlterField }
func (o AlterField) Entity() string    { return o.Model }
func (o AlterField) FieldName() string { return o.Name }

func (o AlterField) Describe() string {
	return fmt.Sprintf("alter field %s.%s", o.Model, o.Name)
}

// Validate implements validation.Validatable
func (o AlterField) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Model, validation.Required, cvalidation.Identifier),
		validation.Field(&o.Name, validation.Required, cvalidation.Identifier),
		validation.Field(&o.Field),
	)
}

// AddForeignKey adds a foreign-key constraint to the existing `<name>_id` column.
type AddForeignKey struct {
	Model    string   `json:"model"`
	Name     string   `json:"name"`
	To       string   `json:"to"`
	OnDelete OnDelete `json:"on_delete"`
}

func (AddForeignKey) isOperation()        {}
func (AddForeignKey) Kind() Kind          { return KindAddForeignKey }
func (o AddForeignKey) Entity() string    { return o.Model }
func (o AddForeignKey) FieldName() string { return o.Name }

func (o AddForeignKey) Describe() string {
	return fmt.Sprintf("add foreign key %s.%s -> %s", o.Model, o.Name, o.To)
}

// Validate implements validation.Validatable
func (o AddForeignKey) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Model, validation.Required, cvalidation.Identifier),
		validation.Field(&o.Name, validation.Required, cvalidation.Identifier),
		validation.Field(&o.To, validation.Required, cvalidation.Entity),
		validation.Field(&o.OnDelete, validation.Required, validation.In(onDeletePolicies...)),
	)
}

// ForeignKeyOf returns the foreign-key part of an operation, ok is false when
// the operation does not touch a foreign key
func ForeignKeyOf(op Operation) (to string, onDelete OnDelete, ok bool) {
	switch o := op.(type) {
	case AddField:
		if o.Field.Type == ForeignKey {
			return o.Field.To, o.Field.OnDelete, true
		}
	case AlterField:
		if o.Field.Type == ForeignKey {
			return o.Field.To, o.Field.OnDelete, true
		}
	case AddForeignKey:
		return o.To, o.OnDelete, true
	}
	return "", "", false
}
