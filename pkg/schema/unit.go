package schema

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"

	cerrors "github.com/contiamo/schema-migrator/pkg/errors"
	cvalidation "github.com/contiamo/schema-migrator/pkg/validation"
)

// UnitID identifies a migration unit inside the module that owns it
type UnitID struct {
	Module string `json:"module" yaml:"module"`
	Name   string `json:"name" yaml:"name"`
}

// ParseUnitID parses the `module.name` form produced by UnitID.String
func ParseUnitID(value string) (UnitID, error) {
	parts := strings.SplitN(value, ".", 2)
	if len(parts) != 2 {
		return UnitID{}, fmt.Errorf("unit id %q must have the form module.name", value)
	}
	id := UnitID{Module: parts[0], Name: parts[1]}
	return id, id.Validate()
}

// String implements fmt.Stringer
func (id UnitID) String() string {
	return id.Module + "." + id.Name
}

// Less orders units by module and then by name
func (id UnitID) Less(other UnitID) bool {
	if id.Module != other.Module {
		return id.Module < other.Module
	}
	return id.Name < other.Name
}

// Validate implements validation.Validatable
func (id UnitID) Validate() error {
	return validation.ValidateStruct(&id,
		validation.Field(&id.Module, validation.Required, cvalidation.Identifier),
		validation.Field(&id.Name, validation.Required, cvalidation.Unit),
	)
}

// Unit is one named, ordered batch of schema operations with explicit
// prerequisites. Units are immutable, use NewUnit to create one.
type Unit struct {
	ID           UnitID
	Operations   []Operation
	Dependencies []UnitID

	checksum string
}

// NewUnit validates the definition and returns the unit. Definition errors are
// returned as a ConfigurationError.
func NewUnit(id UnitID, dependencies []UnitID, operations ...Operation) (*Unit, error) {
	u := &Unit{
		ID:           id,
		Operations:   append([]Operation(nil), operations...),
		Dependencies: append([]UnitID(nil), dependencies...),
	}

	if err := u.Validate(); err != nil {
		return nil, cerrors.NewConfigurationError(id.String(), err)
	}

	sum, err := u.computeChecksum()
	if err != nil {
		return nil, cerrors.NewConfigurationError(id.String(), err)
	}
	u.checksum = sum

	return u, nil
}

// MustUnit is like NewUnit but panics on invalid definitions, it is meant for
// units declared as package level variables
func MustUnit(id UnitID, dependencies []UnitID, operations ...Operation) *Unit {
	u, err := NewUnit(id, dependencies, operations...)
	if err != nil {
		panic(err)
	}
	return u
}

// Validate implements validation.Validatable
func (u *Unit) Validate() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.ID),
		validation.Field(&u.Operations,
			validation.Required.Error("a unit needs at least one operation"),
			validation.Each(validation.NotNil.Error("operation is missing")),
		),
		validation.Field(&u.Dependencies, validation.By(u.checkDependencies)),
	)
}

func (u *Unit) checkDependencies(value interface{}) error {
	seen := make(map[UnitID]bool, len(u.Dependencies))
	for _, dep := range u.Dependencies {
		if dep == u.ID {
			return fmt.Errorf("%s can not depend on itself", u.ID)
		}
		if seen[dep] {
			return fmt.Errorf("%s is listed twice", dep)
		}
		seen[dep] = true
	}
	return nil
}

// Checksum returns the hex encoded SHA3-256 of the canonical JSON form of the unit
func (u *Unit) Checksum() string {
	if u.checksum != "" {
		return u.checksum
	}

	// units that were not created with NewUnit are hashed on every call
	sum, err := u.computeChecksum()
	if err != nil {
		logrus.WithError(err).WithField("unit", u.ID.String()).Error("can not compute the unit checksum")
	}
	return sum
}

type taggedOperation struct {
	Kind      Kind      `json:"kind"`
	Operation Operation `json:"operation"`
}

func (u *Unit) computeChecksum() (string, error) {
	ops := make([]taggedOperation, 0, len(u.Operations))
	for i, op := range u.Operations {
		if op == nil {
			return "", fmt.Errorf("operation %d is missing", i)
		}
		ops = append(ops, taggedOperation{Kind: op.Kind(), Operation: op})
	}

	data, err := json.Marshal(struct {
		ID           UnitID            `json:"id"`
		Dependencies []UnitID          `json:"dependencies"`
		Operations   []taggedOperation `json:"operations"`
	}{u.ID, u.Dependencies, ops})
	if err != nil {
		return "", fmt.Errorf("can not encode unit: %w", err)
	}

	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
