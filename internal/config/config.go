// Package config loads the server configuration.
//
// Values are layered, later layers winning:
//
//	defaults → optional config file → TASKMGR_* environment variables
//
// The result is validated once and then passed around as a read-only value.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Mail     MailConfig     `mapstructure:"mail"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

type DatabaseConfig struct {
	// Path is a file path, or ":memory:" for a throwaway database.
	Path string `mapstructure:"path" validate:"required"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=16"`

	// TokenTTL of 0 means tokens never expire on their own; they are only
	// revoked by logout or account deletion.
	TokenTTL time.Duration `mapstructure:"token_ttl" validate:"gte=0"`

	BcryptCost int `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
}

type MailConfig struct {
	From string `mapstructure:"from" validate:"required,email"`
}
