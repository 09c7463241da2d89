// Package config defines all configuration for the exchange process.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via XCH_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Chains     map[string]ChainConfig     `mapstructure:"chains"`
	Symbols    map[string]SymbolConfig    `mapstructure:"symbols"`
	Server     ServerConfig               `mapstructure:"server"`
	Settlement SettlementConfig           `mapstructure:"settlement"`
	Risk       RiskConfig                 `mapstructure:"risk"`
	Store      StoreConfig                `mapstructure:"store"`
	Logging    LoggingConfig              `mapstructure:"logging"`
	PriceProxy PriceProxyConfig           `mapstructure:"price_proxy"`
	Dashboard  DashboardConfig            `mapstructure:"dashboard"`
}

// ChainConfig describes one supported EVM-compatible chain: how to reach
// it, its settlement contract, and the operator key authorized to call
// that contract's operator-only entrypoints.
type ChainConfig struct {
	RPCURL             string        `mapstructure:"rpc_url"`
	ChainID            int64         `mapstructure:"chain_id"`
	SettlementAddress  string        `mapstructure:"settlement_address"`
	OperatorPrivateKey string        `mapstructure:"operator_private_key"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	Burst              int           `mapstructure:"burst"`
}

// TokenAddresses resolves a symbol's base/quote tokens to their ERC-20
// contract address on one chain.
type TokenAddresses struct {
	BaseToken  string `mapstructure:"base_token"`
	QuoteToken string `mapstructure:"quote_token"`
}

// SymbolConfig carries everything admission needs to validate and route an
// order for one trading pair: the tick grid, the minimum order size, and
// the per-chain token address resolution settlement needs to build
// calldata.
type SymbolConfig struct {
	BaseAsset           string                     `mapstructure:"base_asset"`
	QuoteAsset          string                     `mapstructure:"quote_asset"`
	BaseDecimals        int32                      `mapstructure:"base_decimals"`
	QuoteDecimals       int32                      `mapstructure:"quote_decimals"`
	TickSize            string                     `mapstructure:"tick_size"`
	MinQuantity         string                     `mapstructure:"min_quantity"`
	SelfTradePrevention bool                       `mapstructure:"self_trade_prevention"`
	TapeLimit           int                        `mapstructure:"tape_limit"`
	Addresses           map[string]TokenAddresses  `mapstructure:"addresses"` // keyed by network name
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
}

// SettlementConfig tunes the orchestrator's retry and abandonment policy.
//
//   - MaxRetries: attempts per leg before declaring it permanently failed.
//   - BackoffBase/BackoffMax: exponential backoff bounds between retries.
//   - AbandonAfter: total wall-clock budget for a record before it is
//     marked Abandoned and surfaced for manual intervention.
type SettlementConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
	AbandonAfter time.Duration `mapstructure:"abandon_after"`
}

// RiskConfig sets the thresholds that trip the settlement-health circuit
// breaker (trading halt), adapted from the kill-switch shape of exposure
// limits into settlement-failure-rate limits.
//
//   - InsufficientEscrowRate: fraction of admissions rejected as
//     InsufficientEscrow within Window before tripping.
//   - AbandonedRate: fraction of settlement records that reach Abandoned
//     within Window before tripping.
//   - Window: rolling window the rates above are measured over.
//   - CooldownAfterHalt: how long the halt stays engaged after tripping.
type RiskConfig struct {
	InsufficientEscrowRate float64       `mapstructure:"insufficient_escrow_rate"`
	AbandonedRate          float64       `mapstructure:"abandoned_rate"`
	Window                 time.Duration `mapstructure:"window"`
	CooldownAfterHalt      time.Duration `mapstructure:"cooldown_after_halt"`
}

// StoreConfig sets where replay-guard and in-flight settlement state is
// checkpointed (JSON files, atomic write-then-rename).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PriceProxyConfig points at the external reference-price service the
// /api/price and /api/kline endpoints proxy.
type PriceProxyConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DashboardConfig controls the operational websocket feed.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: XCH_OPERATOR_KEY_<NETWORK>.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("XCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Per-chain operator keys are the one field sensitive enough to
	// warrant an env override even though chains is a map: XCH_OPERATOR_KEY_<NETWORK>.
	for name, chain := range cfg.Chains {
		envName := "XCH_OPERATOR_KEY_" + strings.ToUpper(name)
		if key := os.Getenv(envName); key != "" {
			chain.OperatorPrivateKey = key
			cfg.Chains[name] = chain
		}
	}

	return &cfg, nil
}

// Validate checks all required fields before the server starts. A failure
// here is a ConfigError and is fatal at startup (exit code 1).
func (c *Config) Validate() error {
	if len(c.Chains) < 1 {
		return fmt.Errorf("at least one entry in chains is required")
	}
	for name, chain := range c.Chains {
		if chain.RPCURL == "" {
			return fmt.Errorf("chains.%s.rpc_url is required", name)
		}
		if chain.ChainID == 0 {
			return fmt.Errorf("chains.%s.chain_id is required", name)
		}
		if chain.SettlementAddress == "" {
			return fmt.Errorf("chains.%s.settlement_address is required", name)
		}
		if chain.OperatorPrivateKey == "" {
			return fmt.Errorf("chains.%s.operator_private_key is required (set XCH_OPERATOR_KEY_%s)", name, strings.ToUpper(name))
		}
	}
	if len(c.Symbols) < 1 {
		return fmt.Errorf("at least one entry in symbols is required")
	}
	for sym, s := range c.Symbols {
		if s.BaseAsset == "" || s.QuoteAsset == "" {
			return fmt.Errorf("symbols.%s: base_asset and quote_asset are required", sym)
		}
		if s.TickSize == "" {
			return fmt.Errorf("symbols.%s.tick_size is required", sym)
		}
		for network, addrs := range s.Addresses {
			if addrs.BaseToken == addrs.QuoteToken {
				return fmt.Errorf("symbols.%s.addresses.%s: base_token and quote_token must differ", sym, network)
			}
			chain, ok := c.Chains[network]
			if !ok {
				return fmt.Errorf("symbols.%s.addresses references unknown chain %q", sym, network)
			}
			if addrs.BaseToken == chain.SettlementAddress || addrs.QuoteToken == chain.SettlementAddress {
				return fmt.Errorf("symbols.%s.addresses.%s: token address equals the settlement contract address", sym, network)
			}
		}
	}
	if c.Server.BindAddress == "" {
		return fmt.Errorf("server.bind_address is required")
	}
	if c.Settlement.MaxRetries <= 0 {
		return fmt.Errorf("settlement.max_retries must be > 0")
	}
	if c.Settlement.BackoffBase <= 0 {
		return fmt.Errorf("settlement.backoff_base must be > 0")
	}
	return nil
}
