package config

import (
	"errors"
	"fmt"
	"time"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// StoreConfig selects and tunes the durable backend.
type StoreConfig struct {
	Driver        string        `mapstructure:"driver" yaml:"driver"`
	SQLitePath    string        `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MongoURI      string        `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string        `mapstructure:"mongo_database" yaml:"mongo_database"`
	OpTimeout     time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`
}

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	Store StoreConfig `mapstructure:"store" yaml:"store"`

	HistoryLimit       int      `mapstructure:"history_limit" yaml:"history_limit"`
	ClientBuffer       int      `mapstructure:"client_buffer" yaml:"client_buffer"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	MaxMessageBytes    int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	OriginPatterns     []string `mapstructure:"origin_patterns" yaml:"origin_patterns"`

	AdminJWTSecret string `mapstructure:"admin_jwt_secret" yaml:"admin_jwt_secret"`
	AdminJWTIssuer string `mapstructure:"admin_jwt_issuer" yaml:"admin_jwt_issuer"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		Store: StoreConfig{
			Driver:        DriverSQLite,
			SQLitePath:    "roomrelay.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "roomrelay",
			OpTimeout:     5 * time.Second,
		},
		HistoryLimit:    20,
		ClientBuffer:    64,
		MaxMessageBytes: 1 << 20,
		AdminJWTIssuer:  "roomrelay",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
	if other.Store.SQLitePath != "" {
		c.Store.SQLitePath = other.Store.SQLitePath
	}
	if other.Store.MongoURI != "" {
		c.Store.MongoURI = other.Store.MongoURI
	}
	if other.Store.MongoDatabase != "" {
		c.Store.MongoDatabase = other.Store.MongoDatabase
	}
	if other.Store.OpTimeout != 0 {
		c.Store.OpTimeout = other.Store.OpTimeout
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.ClientBuffer != 0 {
		c.ClientBuffer = other.ClientBuffer
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if len(other.OriginPatterns) > 0 {
		c.OriginPatterns = other.OriginPatterns
	}
	if other.AdminJWTSecret != "" {
		c.AdminJWTSecret = other.AdminJWTSecret
	}
	if other.AdminJWTIssuer != "" {
		c.AdminJWTIssuer = other.AdminJWTIssuer
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	case DriverMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			errs = append(errs, errors.New("store.mongo_uri and store.mongo_database are required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history_limit must be positive, got %d", c.HistoryLimit))
	}
	if c.ClientBuffer < 0 {
		errs = append(errs, fmt.Errorf("client_buffer must not be negative, got %d", c.ClientBuffer))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("rate_limit_per_minute must not be negative, got %d", c.RateLimitPerMinute))
	}
	return errors.Join(errs...)
}
