package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix  = "ROOMRELAY"
	envHomeDir = "ROOMRELAY_CONFIG_DEFAULT_PATH"
	configFile = "config.yaml"
)

// Load resolves the roomrelay settings and reports which file backed them.
//
// A key is taken from the first source that sets it: ROOMRELAY_* variables
// (nested keys use underscores, e.g. ROOMRELAY_STORE_DRIVER), then the YAML
// file, then Default(). Command-line flags are layered on top by the caller via
// UpdateFrom. A missing file is seeded with the defaults so operators have
// something to edit.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()
	path := configPath(explicitPath)

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := readOrSeed(v, path, cfg, logger); err != nil {
		return cfg, path, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, path, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, path, nil
}

// readOrSeed reads path, writing the defaults there first when it does not exist.
// Failing to seed is only logged: env vars and defaults still apply.
func readOrSeed(v *viper.Viper, path string, cfg Config, logger *zerolog.Logger) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if seedErr := seedFile(path, cfg); seedErr != nil {
		warn(logger, seedErr, path, "could not seed config file")
		return nil
	}
	if logger != nil {
		logger.Info().Str("path", path).Msg("seeded config file with defaults")
	}
	if rereadErr := v.ReadInConfig(); rereadErr != nil {
		warn(logger, rereadErr, path, "seeded config file is unreadable")
	}
	return nil
}

func warn(logger *zerolog.Logger, err error, path, msg string) {
	if logger != nil {
		logger.Warn().Err(err).Str("path", path).Msg(msg)
	}
}

// setDefaults registers every key; AutomaticEnv only resolves keys viper knows about.
func setDefaults(v *viper.Viper, cfg Config) {
	defaults := map[string]any{
		"addr":                  cfg.Addr,
		"read_header_timeout":   cfg.ReadHeaderTimeout,
		"shutdown_timeout":      cfg.ShutdownTimeout,
		"log_level":             cfg.LogLevel,
		"log_format":            cfg.LogFormat,
		"store.driver":          cfg.Store.Driver,
		"store.sqlite_path":     cfg.Store.SQLitePath,
		"store.mongo_uri":       cfg.Store.MongoURI,
		"store.mongo_database":  cfg.Store.MongoDatabase,
		"store.op_timeout":      cfg.Store.OpTimeout,
		"history_limit":         cfg.HistoryLimit,
		"client_buffer":         cfg.ClientBuffer,
		"rate_limit_per_minute": cfg.RateLimitPerMinute,
		"max_message_bytes":     cfg.MaxMessageBytes,
		"origin_patterns":       cfg.OriginPatterns,
		"admin_jwt_secret":      cfg.AdminJWTSecret,
		"admin_jwt_issuer":      cfg.AdminJWTIssuer,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// configPath picks the --config value, else ROOMRELAY_CONFIG_DEFAULT_PATH/config.yaml,
// else config.yaml in the working directory.
func configPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if dir := os.Getenv(envHomeDir); dir != "" && os.MkdirAll(dir, 0o755) == nil {
		return filepath.Join(dir, configFile)
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, configFile)
	}
	return configFile
}

func seedFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
