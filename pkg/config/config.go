// Package config loads the daemon configuration from a YAML file with
// environment-variable overrides. File values win over environment values
// except for secrets (wallet key material), which are env-first so they can
// stay out of checked-in files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WalletConfig holds the trading key material. One of PrivateKey or Mnemonic
// must be set for live trading; FunderAddress is the proxy wallet that owns
// the collateral.
type WalletConfig struct {
	PrivateKey    string
	Mnemonic      string
	FunderAddress string
}

// SourceConfig identifies one account to copy. Multiplier, when non-zero,
// overrides the global copy multiplier for this source.
type SourceConfig struct {
	Address    string
	Label      string
	Multiplier float64
}

// CopyConfig are the pipeline knobs: cadence, scaling and risk limits.
type CopyConfig struct {
	Enabled          bool
	DryRun           bool
	PollInterval     time.Duration
	Multiplier       float64 // scaled quantity = source quantity * multiplier
	MinTradeSize     float64 // USDC, opens below this notional are rejected
	MaxTradeSize     float64 // USDC, opens above this notional are rejected
	MaxPositionSize  float64 // USDC, cap on the scaled source position value
	MaxRetryAttempts int     // resubmissions after the first try
	RetryDelay       time.Duration
}

// StoreConfig configures the badger execution store. An empty Path disables
// durable dedup and the engine runs memory-only.
type StoreConfig struct {
	Path string
}

// JournalConfig configures the sqlite copy-trade journal. An empty Path
// disables it.
type JournalConfig struct {
	Path string
}

// ServerConfig is the read-only stats HTTP surface.
type ServerConfig struct {
	Addr string
}

// StreamConfig gates the realtime activity watcher. Polling alone is always
// sufficient; the stream only tightens detection latency.
type StreamConfig struct {
	Enabled bool
	URL     string
}

// ProxyConfig routes outbound HTTP through a forward proxy when set.
type ProxyConfig struct {
	Host string
	Port int
}

// Config is the resolved runtime configuration.
type Config struct {
	Wallet   WalletConfig
	Sources  []SourceConfig
	Copy     CopyConfig
	Store    StoreConfig
	Journal  JournalConfig
	Server   ServerConfig
	Stream   StreamConfig
	Proxy    *ProxyConfig
	LogLevel string
	LogFile  string
}

// configFile mirrors the YAML document. Bool and retry fields are pointers
// so an explicit false or zero is distinguishable from absence.
type configFile struct {
	Wallet struct {
		PrivateKey    string `yaml:"private_key"`
		Mnemonic      string `yaml:"mnemonic"`
		FunderAddress string `yaml:"funder_address"`
	} `yaml:"wallet"`
	Sources []struct {
		Address    string  `yaml:"address"`
		Label      string  `yaml:"label"`
		Multiplier float64 `yaml:"multiplier"`
	} `yaml:"sources"`
	Copy struct {
		Enabled          *bool   `yaml:"enabled"`
		DryRun           *bool   `yaml:"dry_run"`
		PollIntervalSec  int     `yaml:"poll_interval_sec"`
		Multiplier       float64 `yaml:"multiplier"`
		MinTradeSize     float64 `yaml:"min_trade_size"`
		MaxTradeSize     float64 `yaml:"max_trade_size"`
		MaxPositionSize  float64 `yaml:"max_position_size"`
		MaxRetryAttempts *int    `yaml:"max_retry_attempts"`
		RetryDelayMs     int     `yaml:"retry_delay_ms"`
	} `yaml:"copy"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Stream struct {
		Enabled *bool  `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"stream"`
	Proxy struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"proxy"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

var globalConfig *Config
var configFilePath string

// SetConfigPath records the file Load will read.
func SetConfigPath(path string) {
	configFilePath = path
}

// Get returns the loaded global config, nil before Load.
func Get() *Config {
	return globalConfig
}

// Load reads the configured file and resolves the runtime config.
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile resolves configuration from the given YAML file plus the
// environment. An empty path is allowed: everything then comes from the
// environment and defaults, which keeps the one-shot tools usable without a
// config file.
func LoadFromFile(filePath string) (*Config, error) {
	var cf configFile
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", filePath, err)
		}
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", filePath, err)
		}
	}

	config := &Config{
		Wallet: WalletConfig{
			PrivateKey:    envFirst("WALLET_PRIVATE_KEY", cf.Wallet.PrivateKey),
			Mnemonic:      envFirst("WALLET_MNEMONIC", cf.Wallet.Mnemonic),
			FunderAddress: envFirst("WALLET_FUNDER_ADDRESS", cf.Wallet.FunderAddress),
		},
		Sources: resolveSources(&cf),
		Copy: CopyConfig{
			Enabled:          boolOr(cf.Copy.Enabled, parseBoolEnv("COPY_ENABLED", true)),
			DryRun:           boolOr(cf.Copy.DryRun, parseBoolEnv("DRY_RUN", false)),
			PollInterval:     secondsOr(cf.Copy.PollIntervalSec, parseIntEnv("POLL_INTERVAL_SEC", 30)),
			Multiplier:       floatOr(cf.Copy.Multiplier, parseFloatEnv("COPY_MULTIPLIER", 0.05)),
			MinTradeSize:     floatOr(cf.Copy.MinTradeSize, parseFloatEnv("MIN_TRADE_SIZE", 1.05)),
			MaxTradeSize:     floatOr(cf.Copy.MaxTradeSize, parseFloatEnv("MAX_TRADE_SIZE", 250)),
			MaxPositionSize:  floatOr(cf.Copy.MaxPositionSize, parseFloatEnv("MAX_POSITION_SIZE", 1000)),
			MaxRetryAttempts: intPtrOr(cf.Copy.MaxRetryAttempts, parseIntEnv("MAX_RETRY_ATTEMPTS", 3)),
			RetryDelay:       millisOr(cf.Copy.RetryDelayMs, parseIntEnv("RETRY_DELAY_MS", 2000)),
		},
		Store: StoreConfig{
			Path: stringOr(cf.Store.Path, getEnv("STORE_PATH", "data/store")),
		},
		Journal: JournalConfig{
			Path: stringOr(cf.Journal.Path, getEnv("JOURNAL_PATH", "data/journal.db")),
		},
		Server: ServerConfig{
			Addr: stringOr(cf.Server.Addr, getEnv("SERVER_ADDR", "127.0.0.1:8085")),
		},
		Stream: StreamConfig{
			Enabled: boolOr(cf.Stream.Enabled, parseBoolEnv("STREAM_ENABLED", false)),
			URL:     stringOr(cf.Stream.URL, getEnv("STREAM_URL", "wss://ws-live-data.polymarket.com")),
		},
		Proxy:    resolveProxy(&cf),
		LogLevel: stringOr(cf.LogLevel, getEnv("LOG_LEVEL", "info")),
		LogFile:  stringOr(cf.LogFile, getEnv("LOG_FILE", "logs/copytrader.log")),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	// Outbound HTTP picks the proxy up from the environment.
	if config.Proxy != nil {
		proxyURL := fmt.Sprintf("http://%s:%d", config.Proxy.Host, config.Proxy.Port)
		os.Setenv("HTTP_PROXY", proxyURL)
		os.Setenv("HTTPS_PROXY", proxyURL)
		os.Setenv("http_proxy", proxyURL)
		os.Setenv("https_proxy", proxyURL)
	}

	globalConfig = config
	configFilePath = filePath
	return config, nil
}

// Validate enforces the startup invariants. These are the only fatal
// configuration conditions; everything downstream degrades instead of
// exiting.
func (c *Config) Validate() error {
	if c.Copy.Enabled && !c.Copy.DryRun {
		if c.Wallet.PrivateKey == "" && c.Wallet.Mnemonic == "" {
			return fmt.Errorf("wallet: private_key or mnemonic required for live trading")
		}
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("sources: at least one source address required")
	}
	seen := map[string]bool{}
	for i, s := range c.Sources {
		addr := strings.ToLower(strings.TrimSpace(s.Address))
		if addr == "" {
			return fmt.Errorf("sources[%d]: address required", i)
		}
		if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
			return fmt.Errorf("sources[%d]: %q is not a 0x-prefixed 20-byte address", i, s.Address)
		}
		if seen[addr] {
			return fmt.Errorf("sources[%d]: duplicate address %s", i, s.Address)
		}
		seen[addr] = true
		if s.Multiplier < 0 {
			return fmt.Errorf("sources[%d]: multiplier must not be negative", i)
		}
	}
	if c.Copy.Multiplier <= 0 {
		return fmt.Errorf("copy.multiplier must be > 0")
	}
	if c.Copy.MinTradeSize < 0 || c.Copy.MaxTradeSize < 0 || c.Copy.MaxPositionSize < 0 {
		return fmt.Errorf("copy trade size limits must not be negative")
	}
	if c.Copy.MinTradeSize > c.Copy.MaxTradeSize {
		return fmt.Errorf("copy.min_trade_size %v exceeds max_trade_size %v", c.Copy.MinTradeSize, c.Copy.MaxTradeSize)
	}
	if c.Copy.MaxRetryAttempts < 0 {
		return fmt.Errorf("copy.max_retry_attempts must not be negative")
	}
	if c.Copy.PollInterval <= 0 {
		return fmt.Errorf("copy.poll_interval_sec must be > 0")
	}
	return nil
}

// SourceMultiplier returns the effective multiplier for a source address,
// falling back to the global value when no per-source override is set.
func (c *Config) SourceMultiplier(address string) float64 {
	addr := strings.ToLower(address)
	for _, s := range c.Sources {
		if s.Address == addr && s.Multiplier > 0 {
			return s.Multiplier
		}
	}
	return c.Copy.Multiplier
}

func resolveSources(cf *configFile) []SourceConfig {
	if len(cf.Sources) > 0 {
		out := make([]SourceConfig, 0, len(cf.Sources))
		for _, s := range cf.Sources {
			out = append(out, SourceConfig{
				Address:    strings.ToLower(strings.TrimSpace(s.Address)),
				Label:      s.Label,
				Multiplier: s.Multiplier,
			})
		}
		return out
	}
	// SOURCES=0xabc...,0xdef... for file-less runs.
	raw := getEnv("SOURCES", "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]SourceConfig, 0, len(parts))
	for _, p := range parts {
		addr := strings.ToLower(strings.TrimSpace(p))
		if addr != "" {
			out = append(out, SourceConfig{Address: addr})
		}
	}
	return out
}

func resolveProxy(cf *configFile) *ProxyConfig {
	host := stringOr(cf.Proxy.Host, getEnv("PROXY_HOST", ""))
	port := cf.Proxy.Port
	if port == 0 {
		port = parseIntEnv("PROXY_PORT", 0)
	}
	if host == "" || port <= 0 {
		return nil
	}
	return &ProxyConfig{Host: host, Port: port}
}

func envFirst(envKey, fileVal string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fileVal
}

func stringOr(fileVal, fallback string) string {
	if fileVal != "" {
		return fileVal
	}
	return fallback
}

func floatOr(fileVal, fallback float64) float64 {
	if fileVal > 0 {
		return fileVal
	}
	return fallback
}

func boolOr(fileVal *bool, fallback bool) bool {
	if fileVal != nil {
		return *fileVal
	}
	return fallback
}

func intPtrOr(fileVal *int, fallback int) int {
	if fileVal != nil {
		return *fileVal
	}
	return fallback
}

func secondsOr(fileVal, fallback int) time.Duration {
	if fileVal > 0 {
		return time.Duration(fileVal) * time.Second
	}
	return time.Duration(fallback) * time.Second
}

func millisOr(fileVal, fallback int) time.Duration {
	if fileVal > 0 {
		return time.Duration(fileVal) * time.Millisecond
	}
	return time.Duration(fallback) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
