package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"golang.org/x/crypto/bcrypt"
)

const (
	sslModeDisable = "disable"
	sslModeRequire = "require"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	LogModeDevelopment = "development"
	LogModeProduction  = "production"
)

var Module = fx.Provide(NewConfig)

type (
	Config struct {
		Host        string   `mapstructure:"HOST"`
		Port        string   `mapstructure:"PORT"`
		GRPCPort    string   `mapstructure:"GRPC_PORT"`
		DBDriver    string   `mapstructure:"DB_DRIVER"`
		DBHost      string   `mapstructure:"DB_HOST"`
		DBPort      string   `mapstructure:"DB_PORT"`
		DBUser      string   `mapstructure:"DB_USER"`
		DBPassword  string   `mapstructure:"DB_PASSWORD"`
		DBName      string   `mapstructure:"DB_NAME"`
		DBSSLMode   string   `mapstructure:"DB_SSL_MODE"`
		DBPath      string   `mapstructure:"DB_PATH"`
		LogMode     string   `mapstructure:"LOG_MODE"`
		BcryptCost  int      `mapstructure:"BCRYPT_COST"`
		StaffEmails []string `mapstructure:"STAFF_EMAILS"`
	}
)

func NewConfig() (*Config, error) {
	// .env is optional, real environment variables win
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("BOOKSTORE")

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "1323")
	v.SetDefault("GRPC_PORT", "9000")
	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "0.0.0.0")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "db")
	v.SetDefault("DB_SSL_MODE", sslModeDisable)
	v.SetDefault("DB_PATH", "bookstore.db")
	v.SetDefault("LOG_MODE", LogModeDevelopment)
	v.SetDefault("BCRYPT_COST", bcrypt.DefaultCost)
	v.SetDefault("STAFF_EMAILS", []string{})

	envs := []string{
		"HOST", "PORT", "GRPC_PORT",
		"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE", "DB_PATH",
		"LOG_MODE", "BCRYPT_COST", "STAFF_EMAILS",
	}
	for _, key := range envs {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if !oneOf(cfg.DBDriver, DriverPostgres, DriverSQLite) {
		return errors.New(fmt.Sprintf("DB driver is invalid: %s", cfg.DBDriver))
	}
	if !oneOf(cfg.DBSSLMode, sslModeDisable, sslModeRequire) {
		return errors.New(fmt.Sprintf("DB SSL mode is invalid: %s", cfg.DBSSLMode))
	}
	if !oneOf(cfg.LogMode, LogModeDevelopment, LogModeProduction) {
		return errors.New(fmt.Sprintf("log mode is invalid: %s", cfg.LogMode))
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return errors.New(fmt.Sprintf("bcrypt cost is out of range: %d", cfg.BcryptCost))
	}
	return nil
}

func oneOf(value string, valid ...string) bool {
	for _, v := range valid {
		if value == v {
			return true
		}
	}
	return false
}
