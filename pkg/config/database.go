package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var defaultPorts = map[string]uint32{
	"postgres": 5432,
}

const (
	// these environment variables can be used to control the SSL
	// validation behavior and behave the same as the documented
	// postegres environment variables
	PGSSLModeEnvKey         = "PGSSLMODE"
	PGSSLCertPathEnvKey     = "PGSSLCERT"
	PGSSLKeyPathEnvKey      = "PGSSLKEY"
	PGSSLRootCertPathEnvKey = "PGSSLROOTCERT"
)

const (
	pgSSLDisabled   = "disable"
	pgSSLRequire    = "require"
	pgSSLVerifyCA   = "verify-ca"
	pgSSLVerifyFull = "verify-full"
)

// Database contains the connection parameters of the database that holds
// the schema state. SSL is configured via the standard Postgres env variables
// documented here https://www.postgresql.org/docs/current/libpq-envars.html
//
// Specifically, it supports:  PGSSLMODE, PGSSLCERT, PGSSLKEY, PGSSLROOTCERT.
type Database struct {
	// Host of the database server
	Host string `json:"host" env:"HOST"`
	// Port of the database server, the default port of the driver is used when it is 0
	Port uint32 `json:"port" env:"PORT"`
	// Name is the name of the database on the host
	Name string `json:"name" env:"NAME"`
	// Username to access the database
	Username string `json:"username" env:"USERNAME"`
	// Password to access the database, PasswordPath takes precedence
	Password string `json:"-" env:"PASSWORD"`
	// PasswordPath is a path to the file where the password is stored
	PasswordPath string `json:"passwordPath" env:"PASSWORD_PATH"`
	// PoolSize is the max number of concurrent connections to the database,
	// <=0 is unlimited
	PoolSize int `json:"poolSize" env:"POOL_SIZE" envDefault:"4"`
	// DriverName is the database driver name e.g. postgres
	DriverName string `json:"driverName" env:"DRIVER" envDefault:"postgres"`
	// ConnectTimeout limits how long Open retries to reach the database
	ConnectTimeout time.Duration `json:"connectTimeout" env:"CONNECT_TIMEOUT" envDefault:"1m"`
}

// GetPassword gets the database password from PasswordPath or Password
func (cfg *Database) GetPassword() (string, error) {
	if cfg.PasswordPath == "" {
		return cfg.Password, nil
	}
	passwordBytes, err := os.ReadFile(cfg.PasswordPath)
	if err != nil {
		return "", errors.Wrapf(err, "can not read the database password file `%s`", cfg.PasswordPath)
	}

	return strings.TrimSpace(string(passwordBytes)), nil
}

// GetHost returns the host name of the underlying db
func (cfg *Database) GetHost() string {
	if cfg.Host != "" {
		return cfg.Host
	}

	return "localhost"
}

// GetPort returns the port of the underlying db
func (cfg *Database) GetPort() uint32 {
	if cfg.Port != 0 {
		return cfg.Port
	}

	return defaultPorts[cfg.DriverName]
}

// GetConnectionString returns the key=value connection string of lib/pq
func (cfg *Database) GetConnectionString() (connStr string, err error) {
	sslMode, found := os.LookupEnv(PGSSLModeEnvKey)
	if !found {
		sslMode = pgSSLDisabled
	}

	switch sslMode {
	case pgSSLDisabled, pgSSLRequire, pgSSLVerifyCA, pgSSLVerifyFull:
		// nothing to do
	default:
		return "", fmt.Errorf("unknown or unsupported ssl mode: %q", sslMode)
	}

	parts := []string{param("sslmode", sslMode)}
	for _, ssl := range [][2]string{
		{"sslcert", PGSSLCertPathEnvKey},
		{"sslkey", PGSSLKeyPathEnvKey},
		{"sslrootcert", PGSSLRootCertPathEnvKey},
	} {
		if value, found := os.LookupEnv(ssl[1]); found {
			parts = append(parts, param(ssl[0], value))
		}
	}

	if cfg.Host != "" {
		parts = append(parts, param("host", cfg.Host))
	}
	if cfg.Port != 0 {
		parts = append(parts, param("port", fmt.Sprint(cfg.Port)))
	}
	if cfg.Name != "" {
		parts = append(parts, param("dbname", cfg.Name))
	}
	if cfg.Username != "" {
		parts = append(parts, param("user", cfg.Username))
	}

	pw, err := cfg.GetPassword()
	if err != nil {
		return "", err
	}
	if pw != "" {
		parts = append(parts, param("password", pw))
	}

	return strings.Join(parts, " "), nil
}

// param formats a connection parameter, values with spaces or quotes are
// quoted the way libpq expects
func param(key, value string) string {
	if value == "" || strings.ContainsAny(value, ` '\`) {
		value = "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value) + "'"
	}
	return key + "=" + value
}
