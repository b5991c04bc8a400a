package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name:
// server.port is read from TASKMGR_SERVER_PORT.
const EnvPrefix = "TASKMGR"

// defaults lists every key the loader knows. Keys without a sensible default
// (the JWT secret) are still listed so the environment can supply them.
var defaults = map[string]any{
	"server.port":      8080,
	"server.log_level": "info",
	"database.path":    "data/taskmanager.db",
	"auth.jwt_secret":  "",
	"auth.token_ttl":   "0s",
	"auth.bcrypt_cost": 12,
	"mail.from":        "noreply@example.com",
}

// Load builds a Config from defaults, the optional file at configPath and
// the environment, then validates it. An empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	// AutomaticEnv only consults the environment for keys viper already
	// knows, which is why every key has an entry in defaults.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags on cfg and reports every failing field
// by its config key.
func Validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: validating: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config: invalid configuration: %s", strings.Join(msgs, "; "))
}
