package schema

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	cvalidation "github.com/contiamo/schema-migrator/pkg/validation"
)

// FieldType is the kind of column a field describes
type FieldType string

const (
	AutoField                 FieldType = "AutoField"
	BigAutoField              FieldType = "BigAutoField"
	CharField                 FieldType = "CharField"
	TextField                 FieldType = "TextField"
	IntegerField              FieldType = "IntegerField"
	SmallIntegerField         FieldType = "SmallIntegerField"
	PositiveIntegerField      FieldType = "PositiveIntegerField"
	PositiveSmallIntegerField FieldType = "PositiveSmallIntegerField"
	BooleanField              FieldType = "BooleanField"
	DateTimeField             FieldType = "DateTimeField"
	ForeignKey                FieldType = "ForeignKey"
)

var fieldTypes = []interface{}{
	AutoField,
	BigAutoField,
	CharField,
	TextField,
	IntegerField,
	SmallIntegerField,
	PositiveIntegerField,
	PositiveSmallIntegerField,
	BooleanField,
	DateTimeField,
	ForeignKey,
}

// IsAuto returns true for the field types backed by a sequence
func (t FieldType) IsAuto() bool {
	return t == AutoField || t == BigAutoField
}

// IsPositive returns true for the integer types that only allow values >= 0
func (t FieldType) IsPositive() bool {
	return t == PositiveIntegerField || t == PositiveSmallIntegerField
}

// OnDelete is the deletion policy of a foreign key
type OnDelete string

const (
	Cascade    OnDelete = "CASCADE"
	SetNull    OnDelete = "SET_NULL"
	SetDefault OnDelete = "SET_DEFAULT"
	Protect    OnDelete = "PROTECT"
	Restrict   OnDelete = "RESTRICT"
	DoNothing  OnDelete = "DO_NOTHING"
)

var onDeletePolicies = []interface{}{Cascade, SetNull, SetDefault, Protect, Restrict, DoNothing}

// Choice is one allowed value of a field and its display label
type Choice struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Field is the type descriptor of a column.
// A nil Default means the field has no default.
type Field struct {
	Type        FieldType   `json:"type" yaml:"type"`
	Null        bool        `json:"null" yaml:"null"`
	Blank       bool        `json:"blank" yaml:"blank"`
	Default     interface{} `json:"default" yaml:"default"`
	MaxLength   int         `json:"max_length" yaml:"max_length"`
	PrimaryKey  bool        `json:"primary_key" yaml:"primary_key"`
	AutoCreated bool        `json:"auto_created" yaml:"auto_created"`
	Unique      bool        `json:"unique" yaml:"unique"`
	Choices     []Choice    `json:"choices" yaml:"choices"`
	To          string      `json:"to" yaml:"to"`
	OnDelete    OnDelete    `json:"on_delete" yaml:"on_delete"`
	VerboseName string      `json:"verbose_name" yaml:"verbose_name"`
	HelpText    string      `json:"help_text" yaml:"help_text"`
}

// HasDefault returns true when the field declares a default value
func (f Field) HasDefault() bool {
	return f.Default != nil
}

// EffectiveDefault returns the value existing rows receive when the column is
// added. Blank non-nullable text fields fall back to the empty string.
func (f Field) EffectiveDefault() (interface{}, bool) {
	if f.Default != nil {
		return f.Default, true
	}
	if f.Blank && !f.Null && (f.Type == CharField || f.Type == TextField) {
		return "", true
	}
	return nil, false
}

// Validate implements validation.Validatable
func (f Field) Validate() error {
	isFK := f.Type == ForeignKey

	return validation.ValidateStruct(&f,
		validation.Field(&f.Type, validation.Required, validation.In(fieldTypes...)),
		validation.Field(&f.Null,
			validation.When(f.OnDelete == SetNull,
				validation.Required.Error("must be true when on_delete is SET_NULL"),
			),
			validation.When(f.PrimaryKey,
				validation.Empty.Error("primary keys can not be nullable"),
			),
		),
		validation.Field(&f.MaxLength,
			validation.When(f.Type == CharField, validation.Required, validation.Min(1)),
			validation.When(f.Type != CharField, validation.Empty),
		),
		validation.Field(&f.To,
			validation.When(isFK, validation.Required, cvalidation.Entity),
			validation.When(!isFK, validation.Empty.Error("is only allowed on foreign keys")),
		),
		validation.Field(&f.OnDelete,
			validation.When(isFK, validation.Required, validation.In(onDeletePolicies...)),
			validation.When(!isFK, validation.Empty.Error("is only allowed on foreign keys")),
		),
		validation.Field(&f.PrimaryKey,
			validation.When(f.Type.IsAuto(), validation.Required.Error("auto fields must be primary keys")),
		),
		validation.Field(&f.Default,
			validation.When(f.OnDelete == SetDefault, validation.NotNil.Error("is required when on_delete is SET_DEFAULT")),
			validation.By(f.checkDefault),
		),
		validation.Field(&f.Choices, validation.Each(validation.By(checkChoice))),
	)
}

func (f Field) checkDefault(value interface{}) error {
	if f.Default == nil {
		return nil
	}

	switch f.Type {
	case CharField, TextField:
		s, ok := f.Default.(string)
		if !ok {
			return fmt.Errorf("must be a string for %s", f.Type)
		}
		if f.MaxLength > 0 && len(s) > f.MaxLength {
			return fmt.Errorf("is longer than max_length %d", f.MaxLength)
		}
		if len(f.Choices) > 0 && !f.hasChoice(s) {
			return fmt.Errorf("%q is not one of the choices", s)
		}
	case BooleanField:
		if _, ok := f.Default.(bool); !ok {
			return fmt.Errorf("must be a boolean for %s", f.Type)
		}
	case IntegerField, SmallIntegerField, PositiveIntegerField, PositiveSmallIntegerField, AutoField, BigAutoField:
		n, ok := toInt64(f.Default)
		if !ok {
			return fmt.Errorf("must be an integer for %s", f.Type)
		}
		if f.Type.IsPositive() && n < 0 {
			return fmt.Errorf("must not be negative for %s", f.Type)
		}
	}
	return nil
}

func (f Field) hasChoice(value string) bool {
	for _, c := range f.Choices {
		if c.Value == value {
			return true
		}
	}
	return false
}

func checkChoice(value interface{}) error {
	c, ok := value.(Choice)
	if !ok {
		return fmt.Errorf("unexpected choice type %T", value)
	}
	return validation.ValidateStruct(&c, validation.Field(&c.Value, validation.Required))
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		// json numbers
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
