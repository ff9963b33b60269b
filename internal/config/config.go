// Package config loads blogstore settings from a config file and
// BLOGSTORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/marshallshelly/blogstore/pkg/builder"
	"github.com/marshallshelly/blogstore/pkg/migration"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override, e.g. BLOGSTORE_DATABASE_URL.
const EnvPrefix = "BLOGSTORE"

// Config is the full blogstore configuration.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Log         LogConfig         `mapstructure:"log"`
	Transaction TransactionConfig `mapstructure:"transaction"`
	Migrations  MigrationsConfig  `mapstructure:"migrations"`
}

// DatabaseConfig describes the PostgreSQL connection. URL wins over the
// individual fields when set.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
	MinConns int32  `mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	// QueryLog is the pgx trace level for statement logging.
	QueryLog string `mapstructure:"query_log" validate:"omitempty,oneof=trace debug info warn error none"`

	// ConnectRetries is the number of extra pings while the server starts.
	ConnectRetries int `mapstructure:"connect_retries" validate:"gte=0"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	// File enables rotating file output in addition to stderr.
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// TransactionConfig holds the default transaction options.
type TransactionConfig struct {
	MaxWait    time.Duration `mapstructure:"max_wait" validate:"gte=0"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxRetries int           `mapstructure:"max_retries"`
	Isolation  string        `mapstructure:"isolation"`
}

// MigrationsConfig configures the migration executor.
type MigrationsConfig struct {
	LockID int64 `mapstructure:"lock_id"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	db := runtime.DefaultConfig()
	tx := builder.DefaultTxOptions()
	return &Config{
		Database: DatabaseConfig{
			Host:     db.Host,
			Port:     db.Port,
			Name:     db.Database,
			User:     db.User,
			SSLMode:  db.SSLMode,
			MaxConns: db.MaxConns,
			MinConns: db.MinConns,
			QueryLog: db.LogLevel,

			ConnectRetries: 3,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Transaction: TransactionConfig{
			MaxWait:    tx.MaxWait,
			Timeout:    tx.Timeout,
			MaxRetries: tx.MaxRetries,
		},
		Migrations: MigrationsConfig{LockID: migration.DefaultLockID},
	}
}

// Load reads the configuration. An explicit path must exist; with an empty
// path a blogstore.{yaml,json,toml} in the working directory or
// $HOME/.config/blogstore is used when present. Environment variables
// override file values.
func Load(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("blogstore")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/blogstore")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.min_conns", d.Database.MinConns)
	v.SetDefault("database.query_log", d.Database.QueryLog)
	v.SetDefault("database.connect_retries", d.Database.ConnectRetries)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("transaction.max_wait", d.Transaction.MaxWait)
	v.SetDefault("transaction.timeout", d.Transaction.Timeout)
	v.SetDefault("transaction.max_retries", d.Transaction.MaxRetries)
	v.SetDefault("transaction.isolation", d.Transaction.Isolation)

	v.SetDefault("migrations.lock_id", d.Migrations.LockID)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return runtime.Invalid(strings.ToLower(fe.Namespace()), "failed %q check", fe.Tag())
		}
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if _, err := builder.ParseIsolation(c.Transaction.Isolation); err != nil {
		return runtime.Invalid("transaction.isolation", "%v", err)
	}
	return nil
}

// Runtime converts the database section into a runtime.Config. logger
// receives query traces at QueryLog level.
func (d DatabaseConfig) Runtime(logger *zap.Logger) *runtime.Config {
	return &runtime.Config{
		URL:      d.URL,
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Name,
		User:     d.User,
		Password: d.Password,
		SSLMode:  d.SSLMode,
		MaxConns: d.MaxConns,
		MinConns: d.MinConns,
		Logger:   logger,
		LogLevel: d.QueryLog,

		ConnectRetries: d.ConnectRetries,
	}
}

// TxOptions converts the transaction section into builder defaults.
func (t TransactionConfig) TxOptions() (builder.TxOptions, error) {
	isolation, err := builder.ParseIsolation(t.Isolation)
	if err != nil {
		return builder.TxOptions{}, err
	}
	return builder.TxOptions{
		Isolation:  isolation,
		MaxWait:    t.MaxWait,
		Timeout:    t.Timeout,
		MaxRetries: t.MaxRetries,
	}, nil
}
