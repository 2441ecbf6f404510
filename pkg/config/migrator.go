package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"

	"github.com/contiamo/schema-migrator/pkg/tracing"
	cvalidation "github.com/contiamo/schema-migrator/pkg/validation"
)

// EnvPrefix is the prefix of all environment variables read by Load
const EnvPrefix = "SCHEMA_"

// Migrator is the configuration of the schemamigrate command
type Migrator struct {
	Database Database       `json:"database" envPrefix:"DB_"`
	Log      Log            `json:"log" envPrefix:"LOG_"`
	Tracing  tracing.Config `json:"tracing" envPrefix:"TRACING_"`

	// Definitions is the directory with one sub-directory of unit files per module
	Definitions string `json:"definitions" env:"DEFINITIONS" envDefault:"./migrations"`
	// RecordTable is the table the applied record is stored in
	RecordTable string `json:"recordTable" env:"RECORD_TABLE" envDefault:"schema_migrations"`
	// StrictDependencies rejects prerequisites that are neither defined nor applied
	StrictDependencies bool `json:"strictDependencies" env:"STRICT_DEPENDENCIES"`
	// LockTimeout limits how long a run waits for another run to release the
	// lock, the units of the run are not limited by it
	LockTimeout time.Duration `json:"lockTimeout" env:"LOCK_TIMEOUT" envDefault:"5m"`
}

// Load reads the configuration from the `SCHEMA_*` environment variables
func Load() (cfg Migrator, err error) {
	err = env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix})
	if err != nil {
		return cfg, errors.Wrap(err, "can not parse the configuration")
	}

	return cfg, cfg.Validate()
}

// Validate implements validation.Validatable
func (cfg Migrator) Validate() error {
	return validation.ValidateStruct(&cfg,
		validation.Field(&cfg.Definitions, validation.Required),
		validation.Field(&cfg.RecordTable, validation.Required, cvalidation.Identifier),
		validation.Field(&cfg.LockTimeout, validation.Min(time.Duration(0))),
		validation.Field(&cfg.Log),
		validation.Field(&cfg.Database),
	)
}

// Validate implements validation.Validatable
func (cfg Database) Validate() error {
	return validation.ValidateStruct(&cfg,
		// the run holds one connection for its lock and needs another one for the units
		validation.Field(&cfg.PoolSize, validation.When(cfg.PoolSize > 0, validation.Min(2))),
	)
}

// Validate implements validation.Validatable
func (cfg Log) Validate() error {
	return validation.ValidateStruct(&cfg,
		validation.Field(&cfg.Level, validation.In("trace", "debug", "info", "warn", "warning", "error", "fatal", "panic")),
		validation.Field(&cfg.Format, validation.In("text", "json")),
	)
}
