package config

import (
	"fmt"
	"strings"
)

// Validate rejects values the node cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	switch c.DBBackend {
	case BackendLevelDB, BackendBolt:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("DataDir must be set for the %s backend", c.DBBackend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("DBBackend %q unsupported (want leveldb, bolt or memory)", c.DBBackend)
	}
	switch c.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("LogFormat %q unsupported (want json or text)", c.LogFormat)
	}
	if c.LogMaxSizeMB < 0 || c.LogMaxBackups < 0 {
		return fmt.Errorf("log rotation limits must not be negative")
	}
	if strings.TrimSpace(c.GenesisFile) == "" {
		return fmt.Errorf("GenesisFile must be set")
	}
	if c.RPC.RateLimitPerSecond < 0 {
		return fmt.Errorf("rpc: RateLimitPerSecond must not be negative")
	}
	if c.RPC.RateLimitPerSecond > 0 && c.RPC.RateLimitBurst <= 0 {
		return fmt.Errorf("rpc: RateLimitBurst must be positive when rate limiting is enabled")
	}
	if c.RPC.ReadTimeoutSeconds < 0 || c.RPC.WriteTimeoutSeconds < 0 {
		return fmt.Errorf("rpc: timeouts must not be negative")
	}
	if dsn := strings.TrimSpace(c.IndexerDSN); dsn != "" {
		if !strings.HasPrefix(dsn, "sqlite://") && !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			return fmt.Errorf("IndexerDSN must start with sqlite://, postgres:// or postgresql://")
		}
	}
	return nil
}
