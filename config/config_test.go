package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBBackend != BackendLevelDB || cfg.RPC.Audience != "proxyd" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ListenAddress != cfg.ListenAddress || again.RPC.RateLimitBurst != cfg.RPC.RateLimitBurst {
		t.Fatalf("reloaded config differs: %+v", again)
	}
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = "./data"
DBBackend = "BOLT"
GenesisFile = "genesis.json"
IndexerDSN = "sqlite://events.db"

[rpc]
JWTSecret = "s3cret"
Issuer = "ops"
Audience = "proxyd"
RateLimitPerSecond = 5
RateLimitBurst = 10
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBBackend != BackendBolt {
		t.Fatalf("backend %q", cfg.DBBackend)
	}
	if cfg.NetworkName != "furya-local" {
		t.Fatalf("network name default not applied: %q", cfg.NetworkName)
	}
	secret, err := cfg.ResolveJWTSecret()
	if err != nil || secret != "s3cret" {
		t.Fatalf("secret %q %v", secret, err)
	}
	if got := cfg.DataPath("state"); got != filepath.Join("data", "state") {
		t.Fatalf("data path %s", got)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("ValidatorKey = \"abc\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ValidatorKey") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":   func(c *Config) { c.DBBackend = "rocks" },
		"listen":    func(c *Config) { c.ListenAddress = "" },
		"burst":     func(c *Config) { c.RPC.RateLimitBurst = 0 },
		"indexer":   func(c *Config) { c.IndexerDSN = "mysql://db" },
		"genesis":   func(c *Config) { c.GenesisFile = " " },
		"negative":  func(c *Config) { c.RPC.RateLimitPerSecond = -1 },
		"logformat": func(c *Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	mem := Default()
	mem.DBBackend = BackendMemory
	mem.DataDir = ""
	if err := mem.Validate(); err != nil {
		t.Fatalf("memory backend should not need a data dir: %v", err)
	}
}

func TestResolveJWTSecretFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("PROXY_JWT_SECRET", "from-env")
	secret, err := cfg.ResolveJWTSecret()
	if err != nil || secret != "from-env" {
		t.Fatalf("secret %q %v", secret, err)
	}
	t.Setenv("PROXY_JWT_SECRET", "")
	if _, err := cfg.ResolveJWTSecret(); err == nil {
		t.Fatalf("expected error for empty env")
	}
}
