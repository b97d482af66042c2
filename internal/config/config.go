package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissing indicates a required configuration value (wallet address, signing
// key) is absent. Fatal for the specific operation, not for the process.
var ErrMissing = errors.New("config: required value missing")

// Config is the root configuration structure for the keeper agent.
type Config struct {
	General  GeneralConfig  `yaml:"general"`
	Wallet   WalletConfig   `yaml:"wallet"`
	RPC      RPCConfig      `yaml:"rpc"`
	Treasury TreasuryConfig `yaml:"treasury"`
	Shill    ShillConfig    `yaml:"shill"`
	Memory   MemoryConfig   `yaml:"memory"`
}

type GeneralConfig struct {
	InstanceID string `yaml:"instance_id"`
	DryRun     bool   `yaml:"dry_run"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"` // json|text
	AuditPath  string `yaml:"audit_path"`
}

type WalletConfig struct {
	Address    string `yaml:"address"`
	PrivateKey string `yaml:"private_key"` // base58 secret, expanded from env, never logged
}

type RPCConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	WSEndpoint       string        `yaml:"ws_endpoint"`
	FallbackEndpoint string        `yaml:"fallback_endpoint"`
	Timeout          time.Duration `yaml:"timeout"`
}

type TreasuryConfig struct {
	MonthlyCostUSD float64 `yaml:"monthly_cost_usd"`
	KeepLiquidSOL  float64 `yaml:"keep_liquid_sol"`
	SlippageBps    int     `yaml:"slippage_bps"`
	BillLedgerPath string  `yaml:"bill_ledger_path"`
	Bills          []Bill  `yaml:"bills"`
}

// Bill is a recurring payment scheduled by UTC calendar day.
type Bill struct {
	Name       string  `yaml:"name"`
	Address    string  `yaml:"address"`
	AmountSOL  float64 `yaml:"amount_sol"`
	DayOfMonth int     `yaml:"day_of_month"` // 1-31
}

type ShillConfig struct {
	MinSOL    float64 `yaml:"min_sol"`
	ScanLimit int     `yaml:"scan_limit"`
	StatePath string  `yaml:"state_path"`
}

type MemoryConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses a YAML configuration file. Environment variables
// referenced as ${VAR} are expanded before parsing so secrets stay out of
// the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	// Dry-run defaults to on; a config must say so explicitly to go live.
	cfg := &Config{}
	cfg.General.DryRun = true
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	for _, b := range cfg.Treasury.Bills {
		if b.DayOfMonth < 1 || b.DayOfMonth > 31 {
			return nil, fmt.Errorf("parse config: bill %q: day_of_month %d out of range", b.Name, b.DayOfMonth)
		}
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "keeper-1"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.General.AuditPath == "" {
		cfg.General.AuditPath = "state/audit.jsonl"
	}
	if cfg.RPC.Endpoint == "" {
		cfg.RPC.Endpoint = "https://api.mainnet-beta.solana.com"
	}
	if cfg.RPC.WSEndpoint == "" {
		cfg.RPC.WSEndpoint = "wss://api.mainnet-beta.solana.com"
	}
	if cfg.RPC.FallbackEndpoint == "" {
		cfg.RPC.FallbackEndpoint = "https://api.mainnet-beta.solana.com"
	}
	if cfg.RPC.Timeout == 0 {
		cfg.RPC.Timeout = 10 * time.Second
	}
	if cfg.Treasury.MonthlyCostUSD == 0 {
		cfg.Treasury.MonthlyCostUSD = 38
	}
	if cfg.Treasury.KeepLiquidSOL == 0 {
		cfg.Treasury.KeepLiquidSOL = 0.05
	}
	if cfg.Treasury.SlippageBps == 0 {
		cfg.Treasury.SlippageBps = 50
	}
	if cfg.Treasury.BillLedgerPath == "" {
		cfg.Treasury.BillLedgerPath = "state/bills.json"
	}
	if cfg.Shill.MinSOL == 0 {
		cfg.Shill.MinSOL = 0.001
	}
	if cfg.Shill.ScanLimit == 0 {
		cfg.Shill.ScanLimit = 20
	}
	if cfg.Shill.StatePath == "" {
		cfg.Shill.StatePath = "state/shill.json"
	}
	if cfg.Memory.Path == "" {
		cfg.Memory.Path = "state/memory.json"
	}
}

// RequireWallet returns the wallet address or ErrMissing.
func (c *Config) RequireWallet() (string, error) {
	if c.Wallet.Address == "" {
		return "", fmt.Errorf("%w: wallet.address", ErrMissing)
	}
	return c.Wallet.Address, nil
}

// RequireSigningKey returns the signing-key material or ErrMissing.
// Callers must not log or serialize the returned value.
func (c *Config) RequireSigningKey() (string, error) {
	if c.Wallet.PrivateKey == "" {
		return "", fmt.Errorf("%w: wallet.private_key", ErrMissing)
	}
	return c.Wallet.PrivateKey, nil
}
