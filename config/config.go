package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

// Config is the proxyd node configuration.
type Config struct {
	ListenAddress string    `toml:"ListenAddress"`
	DataDir       string    `toml:"DataDir"`
	DBBackend     string    `toml:"DBBackend"`
	GenesisFile   string    `toml:"GenesisFile"`
	NetworkName   string    `toml:"NetworkName"`
	IndexerDSN    string    `toml:"IndexerDSN"`
	LogLevel      string    `toml:"LogLevel"`
	LogFormat     string    `toml:"LogFormat"`
	LogFile       string    `toml:"LogFile"`
	LogMaxSizeMB  int       `toml:"LogMaxSizeMB"`
	LogMaxBackups int       `toml:"LogMaxBackups"`
	RPC           RPCConfig `toml:"rpc"`
}

// RPCConfig controls caller authentication and throttling on the JSON-RPC
// server.
type RPCConfig struct {
	JWTSecret             string  `toml:"JWTSecret"`
	JWTSecretEnv          string  `toml:"JWTSecretEnv"`
	Issuer                string  `toml:"Issuer"`
	Audience              string  `toml:"Audience"`
	RateLimitPerSecond    float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst        int     `toml:"RateLimitBurst"`
	AllowAnonymousQueries bool    `toml:"AllowAnonymousQueries"`
	ReadTimeoutSeconds    int     `toml:"ReadTimeoutSeconds"`
	WriteTimeoutSeconds   int     `toml:"WriteTimeoutSeconds"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       "./proxy-data",
		DBBackend:     BackendLevelDB,
		GenesisFile:   "genesis.json",
		NetworkName:   "furya-local",
		LogLevel:      "info",
		LogFormat:     "json",
		LogMaxSizeMB:  100,
		LogMaxBackups: 5,
		RPC: RPCConfig{
			JWTSecretEnv:          "PROXY_JWT_SECRET",
			Issuer:                "proxyctl",
			Audience:              "proxyd",
			RateLimitPerSecond:    20,
			RateLimitBurst:        40,
			AllowAnonymousQueries: true,
			ReadTimeoutSeconds:    10,
			WriteTimeoutSeconds:   10,
		},
	}
}

// ResolveJWTSecret returns the inline secret or, when empty, the value of the
// configured environment variable.
func (c *Config) ResolveJWTSecret() (string, error) {
	if secret := strings.TrimSpace(c.RPC.JWTSecret); secret != "" {
		return secret, nil
	}
	if env := strings.TrimSpace(c.RPC.JWTSecretEnv); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("rpc: JWT secret env %s is empty", env)
	}
	return "", fmt.Errorf("rpc: JWT secret not configured")
}

// DataPath joins name onto DataDir.
func (c *Config) DataPath(name string) string {
	return filepath.Join(c.DataDir, name)
}

func (c *Config) applyDefaults() {
	defaults := Default()
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = defaults.NetworkName
	}
	if strings.TrimSpace(c.DBBackend) == "" {
		c.DBBackend = defaults.DBBackend
	}
	c.DBBackend = strings.ToLower(strings.TrimSpace(c.DBBackend))
	if strings.TrimSpace(c.LogFormat) == "" {
		c.LogFormat = defaults.LogFormat
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.RPC.ReadTimeoutSeconds == 0 {
		c.RPC.ReadTimeoutSeconds = defaults.RPC.ReadTimeoutSeconds
	}
	if c.RPC.WriteTimeoutSeconds == 0 {
		c.RPC.WriteTimeoutSeconds = defaults.RPC.WriteTimeoutSeconds
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
