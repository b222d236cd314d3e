// Package config loads the TAXII server configuration from a TOML file. Secrets may be
// supplied through the environment or a .env file instead of the file itself.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/dbmanager"
)

// Environment variables that override values from the file.
const (
	EnvDBPassword = "TAXII_DB_PASSWORD"
	EnvDBDSN      = "TAXII_DB_DSN"
	EnvAuthSecret = "TAXII_AUTH_SECRET"
)

type ServerConfig struct {
	Hostname           string   `toml:"hostname"`
	Port               int      `toml:"port" validate:"min=1,max=65535"`
	HandleCORS         bool     `toml:"handle_cors"`
	CORSOrigins        []string `toml:"cors_origins"`
	MaxRequestBodySize int64    `toml:"max_request_body_size" validate:"gte=0"`
	RequestTimeout     string   `toml:"request_timeout"`
}

type TAXIIConfig struct {
	Title           string `toml:"title" validate:"required"`
	Description     string `toml:"description"`
	Contact         string `toml:"contact"`
	DefaultPageSize int    `toml:"default_page_size" validate:"gte=0"`
	MaxPageSize     int    `toml:"max_page_size" validate:"gte=0"`
}

type DBConfig struct {
	Driver           string `toml:"driver" validate:"required,oneof=postgresql sqlite"`
	DSN              string `toml:"dsn"`
	Host             string `toml:"host"`
	Port             int    `toml:"port" validate:"gte=0,lte=65535"`
	DBName           string `toml:"dbname"`
	User             string `toml:"user"`
	Password         string `toml:"password"`
	SSLMode          string `toml:"sslmode"`
	Path             string `toml:"path"`
	MaxOpenConns     int    `toml:"max_open_conns" validate:"gte=0"`
	CompressObjects  bool   `toml:"compress_objects"`
	StatementTimeout string `toml:"statement_timeout"`
}

type AuthConfig struct {
	Secret string `toml:"secret"`
	Issuer string `toml:"issuer"`
}

type JobsConfig struct {
	CleanupInterval string `toml:"cleanup_interval"`
}

type LogConfig struct {
	Level string `toml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
}

// Config is the complete server configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	TAXII  TAXIIConfig  `toml:"taxii"`
	DB     DBConfig     `toml:"db"`
	Auth   AuthConfig   `toml:"auth"`
	Jobs   JobsConfig   `toml:"jobs"`
	Log    LogConfig    `toml:"log"`
}

// Default returns the configuration used for values the file leaves unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Hostname:           "localhost",
			Port:               9000,
			MaxRequestBodySize: 10 << 20,
			RequestTimeout:     "30s",
		},
		TAXII: TAXIIConfig{
			Title:           "TAXII Server",
			DefaultPageSize: 100,
			MaxPageSize:     1000,
		},
		DB: DBConfig{
			Driver:           dbmanager.DriverSQLite,
			Path:             "taxii.db",
			SSLMode:          "disable",
			StatementTimeout: "30s",
		},
		Jobs: JobsConfig{
			CleanupInterval: "1h",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration file at path on top of Default. A .env file next to the
// configuration file, or in the working directory, is loaded into the environment first.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config filename is required")
	}
	loadDotEnv(path)

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Parse decodes configuration from TOML text on top of Default, without touching the environment.
func Parse(text string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(text, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func loadDotEnv(configPath string) {
	candidates := []string{filepath.Join(filepath.Dir(configPath), ".env")}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, ".env"))
	}
	for _, p := range candidates {
		_ = godotenv.Load(p) // no error if .env doesn't exist; existing variables win
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPassword); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv(EnvDBDSN); v != "" {
		c.DB.DSN = v
	}
	if v := os.Getenv(EnvAuthSecret); v != "" {
		c.Auth.Secret = v
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the settings that depend on each other.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for name, value := range map[string]string{
		"server.request_timeout": c.Server.RequestTimeout,
		"db.statement_timeout":   c.DB.StatementTimeout,
		"jobs.cleanup_interval":  c.Jobs.CleanupInterval,
	} {
		if value == "" {
			continue
		}
		if _, err := ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %v", name, err)
		}
	}
	if c.TAXII.MaxPageSize > 0 && c.TAXII.DefaultPageSize > c.TAXII.MaxPageSize {
		return fmt.Errorf("taxii.default_page_size exceeds taxii.max_page_size")
	}
	if c.DB.DSN != "" {
		return nil
	}
	switch c.DB.Driver {
	case dbmanager.DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for sqlite")
		}
	case dbmanager.DriverPostgres:
		if c.DB.Host == "" {
			return fmt.Errorf("db.host is required")
		}
		if c.DB.DBName == "" {
			return fmt.Errorf("db.dbname is required")
		}
		if c.DB.User == "" {
			return fmt.Errorf("db.user is required")
		}
	}
	return nil
}

// ConnString returns the connection string for the configured driver. An explicit dsn wins.
func (c *DBConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == dbmanager.DriverSQLite {
		return c.Path
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// DBManagerConfig converts the db section into the pool configuration.
func (c *Config) DBManagerConfig() dbmanager.Config {
	return dbmanager.Config{
		Driver:           c.DB.Driver,
		DSN:              c.DB.ConnString(),
		MaxOpenConns:     c.DB.MaxOpenConns,
		StatementTimeout: durationOrZero(c.DB.StatementTimeout),
	}
}

// RequestTimeout returns server.request_timeout; zero disables the timeout.
func (c *Config) RequestTimeout() time.Duration {
	return durationOrZero(c.Server.RequestTimeout)
}

// CleanupInterval returns jobs.cleanup_interval.
func (c *Config) CleanupInterval() time.Duration {
	return durationOrZero(c.Jobs.CleanupInterval)
}

// ListenAddr returns the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func durationOrZero(s string) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// ParseDuration accepts Go durations ("90s", "1h30m") and whole days or years ("2d", "1y").
func ParseDuration(input string) (time.Duration, error) {
	if input == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(input); err == nil {
		return d, nil
	}
	unit := input[len(input)-1:]
	value, err := strconv.Atoi(strings.TrimSpace(input[:len(input)-1]))
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %s", input)
	}
	switch unit {
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	case "y":
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown time unit: %s", unit)
}
