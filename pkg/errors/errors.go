package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	// ErrCycle is matched by every CycleError
	ErrCycle = errors.New("migration dependencies contain a cycle")
	// ErrIntegrity is matched by every IntegrityError
	ErrIntegrity = errors.New("operation violates existing data")
	// ErrConfiguration is matched by every ConfigurationError
	ErrConfiguration = errors.New("invalid migration definition")
)

// ValidationErrors contains errors organized by validated fields
// for now it's just an alias to the validation library we use
type ValidationErrors = validation.Errors

// CycleError is returned when the prerequisite edges of a unit set do not
// allow any valid apply order.
type CycleError struct {
	// Units lists the unit identities on the cycle, the first unit is repeated at the end
	Units []string
}

// Error implements the error interface
func (e CycleError) Error() string {
	if len(e.Units) == 0 {
		return ErrCycle.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Units, " -> "))
}

// Is makes CycleError match ErrCycle
func (e CycleError) Is(target error) bool {
	return target == ErrCycle
}

// IntegrityError is returned when an operation can not be applied to the data
// that already exists in the schema state, e.g. adding a non-nullable column
// without a default to a table with rows.
type IntegrityError struct {
	// Unit is the identity of the unit being applied
	Unit string
	// Operation is the description of the failing operation
	Operation string
	// Reason explains what constraint was violated
	Reason string
}

// Error implements the error interface
func (e IntegrityError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("integrity error: %s: %s", e.Operation, e.Reason)
	}
	return fmt.Sprintf("integrity error in %s: %s: %s", e.Unit, e.Operation, e.Reason)
}

// Is makes IntegrityError match ErrIntegrity
func (e IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// ConfigurationError is returned when a unit definition is invalid. It is
// detected when the unit is defined, never while it is applied.
type ConfigurationError struct {
	// Unit is the identity of the invalid unit
	Unit  string
	cause error
}

// NewConfigurationError wraps the cause as a ConfigurationError of the given unit
func NewConfigurationError(unit string, cause error) error {
	if cause == nil {
		return nil
	}
	return ConfigurationError{Unit: unit, cause: cause}
}

// Error implements the error interface
func (e ConfigurationError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.cause)
	}
	return fmt.Sprintf("%s %s: %s", ErrConfiguration, e.Unit, e.cause)
}

// Unwrap implements the error wrapping interface to expose the source error
func (e ConfigurationError) Unwrap() error {
	return e.cause
}

// Is makes ConfigurationError match ErrConfiguration
func (e ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// FieldError is a single validation message with the dotted key of the field
// it belongs to
type FieldError struct {
	Key     string
	Message string
}

// FieldErrors flattens nested validation errors into a list of field errors.
// Nested keys are joined with dots, e.g. `operations.2.field.null`.
// Errors that are not validation errors produce a single entry with an empty key.
func FieldErrors(err error) []FieldError {
	if err == nil {
		return nil
	}

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for key, fieldErr := range verrs {
		if fieldErr == nil {
			continue
		}
		for _, nested := range FieldErrors(fieldErr) {
			k := key
			if nested.Key != "" {
				k = key + "." + nested.Key
			}
			out = append(out, FieldError{Key: k, Message: nested.Message})
		}
	}

	// to always have deterministic results
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key == out[j].Key {
			return out[i].Message < out[j].Message
		}
		return out[i].Key < out[j].Key
	})
	return out
}
