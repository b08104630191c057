// Package config loads runtime settings from environment variables and an
// optional YAML file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

const base64KeyPrefix = "base64:"

// Config stores all runtime configuration.
type Config struct {
	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	HTTP     HTTPConfig
	GRPC     GRPCConfig
	Log      LogConfig
}

type AuthConfig struct {
	SigningKey  []byte
	TokenTTL    time.Duration
	Issuer      string
	Audience    string
	BypassRoles []string

	// BootstrapAdmin is created on boot when the stores start empty.
	BootstrapAdmin Credentials
}

type Credentials struct {
	Username string
	Password string
}

// DatabaseConfig selects PostgreSQL; an empty DSN means in-memory stores.
type DatabaseConfig struct {
	DSN string
}

// RedisConfig selects the Redis ownership index when Addr is set.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type HTTPConfig struct {
	Addr       string
	RatePerSec float64
	RateBurst  int
}

type GRPCConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
}

// TokenConfig adapts the auth settings for auth.NewTokenService.
func (c Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		SigningKey: c.Auth.SigningKey,
		TTL:        c.Auth.TokenTTL,
		Issuer:     c.Auth.Issuer,
		Audience:   c.Auth.Audience,
	}
}

// Load reads the environment and, when path is non-empty, a YAML file.
// Environment variables use upper case with '_' for '.', e.g.
// AUTH_SIGNING_KEY.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	return FromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", "")
	v.SetDefault("auth.issuer", "inventory-api")
	v.SetDefault("auth.audience", "inventory-clients")
	v.SetDefault("auth.bypass_roles", auth.RoleAdmin)
	v.SetDefault("auth.bootstrap_admin_user", "")
	v.SetDefault("auth.bootstrap_admin_password", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "inventory:")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_per_sec", 20.0)
	v.SetDefault("http.rate_burst", 40)
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("log.level", "info")
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	key, err := decodeSigningKey(v.GetString("auth.signing_key"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Auth: AuthConfig{
			SigningKey:  key,
			TokenTTL:    ParseTTL(v.GetString("auth.token_ttl")),
			Issuer:      strings.TrimSpace(v.GetString("auth.issuer")),
			Audience:    strings.TrimSpace(v.GetString("auth.audience")),
			BypassRoles: stringList(v, "auth.bypass_roles"),

			BootstrapAdmin: Credentials{
				Username: strings.TrimSpace(v.GetString("auth.bootstrap_admin_user")),
				Password: v.GetString("auth.bootstrap_admin_password"),
			},
		},
		Database: DatabaseConfig{DSN: strings.TrimSpace(v.GetString("database.dsn"))},
		Redis: RedisConfig{
			Addr:      strings.TrimSpace(v.GetString("redis.addr")),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		HTTP: HTTPConfig{
			Addr:       v.GetString("http.addr"),
			RatePerSec: v.GetFloat64("http.rate_per_sec"),
			RateBurst:  v.GetInt("http.rate_burst"),
		},
		GRPC: GRPCConfig{Addr: v.GetString("grpc.addr")},
		Log:  LogConfig{Level: v.GetString("log.level")},
	}
	if cfg.Auth.Issuer == "" || cfg.Auth.Audience == "" {
		return Config{}, fmt.Errorf("%w: auth.issuer and auth.audience must not be empty", auth.ErrConfiguration)
	}
	if admin := cfg.Auth.BootstrapAdmin; admin.Username != "" && admin.Password == "" {
		return Config{}, fmt.Errorf("%w: auth.bootstrap_admin_password is required with auth.bootstrap_admin_user", auth.ErrConfiguration)
	}
	return cfg, nil
}

// ParseTTL reads a lifetime in whole seconds. Absent, unparseable or
// non-positive values fall back to auth.DefaultTokenTTL.
func ParseTTL(raw string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs <= 0 {
		return auth.DefaultTokenTTL
	}
	return time.Duration(secs) * time.Second
}

func decodeSigningKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: auth.signing_key is required", auth.ErrConfiguration)
	}
	key := []byte(raw)
	if encoded, ok := strings.CutPrefix(raw, base64KeyPrefix); ok {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: auth.signing_key is not valid base64: %v", auth.ErrConfiguration, err)
		}
		key = decoded
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("%w: auth.signing_key must be at least 256 bits, got %d", auth.ErrConfiguration, len(key)*8)
	}
	return key, nil
}

// stringList accepts either a YAML list or a comma separated string.
func stringList(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case string:
		raw = strings.Split(val, ",")
	default:
		raw = v.GetStringSlice(key)
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
