// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: fixed at genesis, must match across all nodes
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/coinshift-network/coinshift-core/internal/oracle"
	"github.com/coinshift-network/coinshift-core/pkg/tx"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration. These settings can
// vary between nodes without affecting the shared chain state they
// converge on.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Parent-chain oracle (§4.4, §6) — RPC endpoints and auth for every
	// chain a swap or withdrawal bundle this node processes can reference.
	Oracle OracleConfig

	// RPC server exposing read access to chain state and the swap/
	// withdrawal submission endpoints.
	RPC RPCConfig

	// Logging
	Log LogConfig

	// Maintenance (not persisted in config file)
	RebuildIndexes bool
}

// OracleConfig is the conf-file-friendly form of internal/oracle.Config:
// one entry per parent chain this node talks to.
type OracleConfig struct {
	Chains []ChainConfig `conf:"oracle.chains"`
}

// ChainConfig is one parent chain's oracle node connection.
type ChainConfig struct {
	Chain             tx.ParentChainType `conf:"chain"`
	Endpoint          string             `conf:"endpoint"`
	AuthKind          string             `conf:"auth.kind"` // none, basic, apikey, token
	Username          string             `conf:"auth.username"`
	Password          string             `conf:"auth.password"`
	APIKey            string             `conf:"auth.apikey"`
	Token             string             `conf:"auth.token"`
	ConfirmationCount *uint32            `conf:"confirmations"` // overrides DefaultConfirmations(chain) when set
}

// Build converts the conf-file representation into the oracle client's
// native Config.
func (c OracleConfig) Build() oracle.Config {
	cfg := oracle.Config{Chains: make(map[oracle.Chain]oracle.NodeConfig, len(c.Chains))}
	for _, ch := range c.Chains {
		auth := oracle.ChainAuth{}
		switch ch.AuthKind {
		case "basic":
			auth.Kind = oracle.AuthBasic
			auth.Username = ch.Username
			auth.Password = ch.Password
		case "apikey":
			auth.Kind = oracle.AuthAPIKey
			auth.APIKey = ch.APIKey
		case "token":
			auth.Kind = oracle.AuthToken
			auth.Token = ch.Token
		}
		cfg.Chains[ch.Chain] = oracle.NodeConfig{
			Endpoint:          ch.Endpoint,
			Auth:              auth,
			ConfirmationCount: ch.ConfirmationCount,
		}
	}
	return cfg
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.coinshift
//	macOS:   ~/Library/Application Support/CoinShift
//	Windows: %APPDATA%\CoinShift
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coinshift"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "CoinShift")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "CoinShift")
		}
		return filepath.Join(home, "AppData", "Roaming", "CoinShift")
	default:
		return filepath.Join(home, ".coinshift")
	}
}

// ChainDataDir returns the chain-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StateDir returns the directory the block engine's KV store lives in:
// the UTXO/STXO index, BitAsset/AMM/auction tables, swap store,
// withdrawal store, and block/tx index all share this one BadgerDB.
func (c *Config) StateDir() string {
	return filepath.Join(c.ChainDataDir(), "state")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "coinshift.conf")
}
