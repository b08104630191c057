package config

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

const rawKey = "0123456789abcdef0123456789abcdef"

func TestParseTTL(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", auth.DefaultTokenTTL},
		{"abc", auth.DefaultTokenTTL},
		{"-5", auth.DefaultTokenTTL},
		{"0", auth.DefaultTokenTTL},
		{"1", time.Second},
		{" 900 ", 15 * time.Minute},
	}
	for _, tc := range cases {
		if got := ParseTTL(tc.raw); got != tc.want {
			t.Fatalf("ParseTTL(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("AUTH_SIGNING_KEY", "base64:"+base64.StdEncoding.EncodeToString([]byte(rawKey)))
	t.Setenv("AUTH_TOKEN_TTL", "120")
	t.Setenv("AUTH_BYPASS_ROLES", "admin, manager")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(cfg.Auth.SigningKey) != rawKey {
		t.Fatalf("base64 key not decoded: %q", cfg.Auth.SigningKey)
	}
	if cfg.Auth.TokenTTL != 2*time.Minute {
		t.Fatalf("unexpected ttl %v", cfg.Auth.TokenTTL)
	}
	if len(cfg.Auth.BypassRoles) != 2 || cfg.Auth.BypassRoles[1] != "MANAGER" {
		t.Fatalf("unexpected bypass roles %v", cfg.Auth.BypassRoles)
	}
	if cfg.HTTP.Addr != ":9999" || cfg.GRPC.Addr != ":9090" {
		t.Fatalf("unexpected addrs %q %q", cfg.HTTP.Addr, cfg.GRPC.Addr)
	}
	if cfg.Auth.Issuer != "inventory-api" || cfg.Auth.Audience != "inventory-clients" {
		t.Fatalf("unexpected defaults %q %q", cfg.Auth.Issuer, cfg.Auth.Audience)
	}
	if _, err := auth.NewTokenService(cfg.TokenConfig()); err != nil {
		t.Fatalf("token config rejected: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "auth:\n  signing_key: " + rawKey + "\n  bypass_roles: [admin]\ndatabase:\n  dsn: postgres://localhost/inventory\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.DSN != "postgres://localhost/inventory" {
		t.Fatalf("unexpected dsn %q", cfg.Database.DSN)
	}
	if len(cfg.Auth.BypassRoles) != 1 || cfg.Auth.BypassRoles[0] != auth.RoleAdmin {
		t.Fatalf("unexpected bypass roles %v", cfg.Auth.BypassRoles)
	}
	if cfg.Auth.TokenTTL != auth.DefaultTokenTTL {
		t.Fatalf("expected default ttl, got %v", cfg.Auth.TokenTTL)
	}
}

func TestSigningKeyErrors(t *testing.T) {
	cases := map[string]string{
		"missing":    "",
		"too short":  "short-key",
		"bad base64": "base64:!!!",
		"short b64":  "base64:" + base64.StdEncoding.EncodeToString([]byte("tiny")),
	}
	for name, key := range cases {
		t.Run(name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			v.Set("auth.signing_key", key)
			if _, err := FromViper(v); !errors.Is(err, auth.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestBootstrapAdminSettings(t *testing.T) {
	t.Setenv("AUTH_SIGNING_KEY", rawKey)
	t.Setenv("AUTH_BOOTSTRAP_ADMIN_USER", " root ")
	t.Setenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD", "correct-horse")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Auth.BootstrapAdmin; got.Username != "root" || got.Password != "correct-horse" {
		t.Fatalf("unexpected bootstrap admin %+v", got)
	}

	t.Setenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD", "")
	if _, err := Load(""); !errors.Is(err, auth.ErrConfiguration) {
		t.Fatalf("user without password: expected ErrConfiguration, got %v", err)
	}
}
