package validation

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	// MaxSQLIdentifierLength is the max length of a postgres identifier
	MaxSQLIdentifierLength = 63
	sqlIdentifierErrorMsg  = "SQL names must start with an alphabetic character and may only include alphanumeric characters and underscores '_'"
	unitNameErrorMsg       = "unit names may only include alphanumeric characters and underscores '_'"
	entityRefErrorMsg      = "entity references must be a SQL name optionally prefixed with the module, e.g. `sample.nucleicacidtype`"
)

var (
	identifierRE = regexp.MustCompile("^[a-zA-Z]+[a-zA-Z0-9_]*$")
	unitNameRE   = regexp.MustCompile("^[a-zA-Z0-9_]+$")
	entityRefRE  = regexp.MustCompile(`^([a-zA-Z]+[a-zA-Z0-9_]*\.)?[a-zA-Z]+[a-zA-Z0-9_]*$`)
)

var (
	// Identifier is the ozzo rule form of SQLIdentifier
	Identifier = validation.By(stringRule(SQLIdentifier))
	// Unit is the ozzo rule form of UnitName
	Unit = validation.By(stringRule(UnitName))
	// Entity is the ozzo rule form of EntityReference
	Entity = validation.By(stringRule(EntityReference))
)

// SQLIdentifier returns an error if the string value can't be used as a SQL identifier
func SQLIdentifier(value string) error {
	return validation.Validate(
		value,
		validation.Required,
		validation.Length(1, MaxSQLIdentifierLength),
		validation.Match(identifierRE).Error(sqlIdentifierErrorMsg),
	)
}

// UnitName returns an error if the value can't be used as the name of a migration unit
func UnitName(value string) error {
	return validation.Validate(
		value,
		validation.Required,
		validation.Length(1, 255),
		validation.Match(unitNameRE).Error(unitNameErrorMsg),
	)
}

// EntityReference returns an error if the value is not a `model` or `module.model` reference
func EntityReference(value string) error {
	return validation.Validate(
		value,
		validation.Required,
		validation.Length(1, 2*MaxSQLIdentifierLength+1),
		validation.Match(entityRefRE).Error(entityRefErrorMsg),
	)
}

func stringRule(check func(string) error) validation.RuleFunc {
	return func(value interface{}) error {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("must be a string, got %T", value)
		}
		return check(s)
	}
}
