package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
wallet:
  private_key: "0xdeadbeef"
sources:
  - address: "0x1111111111111111111111111111111111111111"
    label: "whale"
  - address: "0x2222222222222222222222222222222222222222"
    multiplier: 0.1
copy:
  dry_run: true
  poll_interval_sec: 15
  multiplier: 0.02
  min_trade_size: 2
  max_trade_size: 100
  max_position_size: 400
  max_retry_attempts: 5
  retry_delay_ms: 250
store:
  path: "/tmp/store"
server:
  addr: "127.0.0.1:9000"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("len(Sources) = %d, want 2", len(cfg.Sources))
	}
	if cfg.Sources[0].Label != "whale" {
		t.Errorf("Sources[0].Label = %q, want %q", cfg.Sources[0].Label, "whale")
	}
	if !cfg.Copy.DryRun {
		t.Error("Copy.DryRun = false, want true")
	}
	if cfg.Copy.PollInterval != 15*time.Second {
		t.Errorf("Copy.PollInterval = %v, want 15s", cfg.Copy.PollInterval)
	}
	if cfg.Copy.Multiplier != 0.02 {
		t.Errorf("Copy.Multiplier = %v, want 0.02", cfg.Copy.Multiplier)
	}
	if cfg.Copy.MaxRetryAttempts != 5 {
		t.Errorf("Copy.MaxRetryAttempts = %d, want 5", cfg.Copy.MaxRetryAttempts)
	}
	if cfg.Copy.RetryDelay != 250*time.Millisecond {
		t.Errorf("Copy.RetryDelay = %v, want 250ms", cfg.Copy.RetryDelay)
	}
	if cfg.Store.Path != "/tmp/store" {
		t.Errorf("Store.Path = %q, want /tmp/store", cfg.Store.Path)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Server.Addr = %q, want 127.0.0.1:9000", cfg.Server.Addr)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
copy:
  dry_run: true
sources:
  - address: "0x1111111111111111111111111111111111111111"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Copy.PollInterval != 30*time.Second {
		t.Errorf("default PollInterval = %v, want 30s", cfg.Copy.PollInterval)
	}
	if cfg.Copy.Multiplier != 0.05 {
		t.Errorf("default Multiplier = %v, want 0.05", cfg.Copy.Multiplier)
	}
	if cfg.Copy.MaxRetryAttempts != 3 {
		t.Errorf("default MaxRetryAttempts = %d, want 3", cfg.Copy.MaxRetryAttempts)
	}
	if !cfg.Copy.Enabled {
		t.Error("default Enabled = false, want true")
	}
	if cfg.Stream.Enabled {
		t.Error("default Stream.Enabled = true, want false")
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("WALLET_PRIVATE_KEY", "0xfromenv")
	path := writeConfig(t, `
wallet:
  private_key: "0xfromfile"
copy:
  dry_run: true
sources:
  - address: "0x1111111111111111111111111111111111111111"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Wallet.PrivateKey != "0xfromenv" {
		t.Errorf("Wallet.PrivateKey = %q, want env value", cfg.Wallet.PrivateKey)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Sources: []SourceConfig{{Address: "0x1111111111111111111111111111111111111111"}},
			Copy: CopyConfig{
				Enabled:      true,
				DryRun:       true,
				PollInterval: 30 * time.Second,
				Multiplier:   0.05,
				MinTradeSize: 1,
				MaxTradeSize: 100,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid dry run without wallet", func(c *Config) {}, false},
		{"live trading requires wallet", func(c *Config) { c.Copy.DryRun = false }, true},
		{"no sources", func(c *Config) { c.Sources = nil }, true},
		{"bad address", func(c *Config) { c.Sources[0].Address = "not-an-address" }, true},
		{"duplicate sources", func(c *Config) {
			c.Sources = append(c.Sources, SourceConfig{Address: "0x1111111111111111111111111111111111111111"})
		}, true},
		{"zero multiplier", func(c *Config) { c.Copy.Multiplier = 0 }, true},
		{"min above max", func(c *Config) { c.Copy.MinTradeSize = 200 }, true},
		{"negative retries", func(c *Config) { c.Copy.MaxRetryAttempts = -1 }, true},
		{"zero poll interval", func(c *Config) { c.Copy.PollInterval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSourceMultiplier(t *testing.T) {
	cfg := &Config{
		Sources: []SourceConfig{
			{Address: "0x1111111111111111111111111111111111111111", Multiplier: 0.2},
			{Address: "0x2222222222222222222222222222222222222222"},
		},
		Copy: CopyConfig{Multiplier: 0.05},
	}

	if got := cfg.SourceMultiplier("0x1111111111111111111111111111111111111111"); got != 0.2 {
		t.Errorf("override multiplier = %v, want 0.2", got)
	}
	if got := cfg.SourceMultiplier("0x2222222222222222222222222222222222222222"); got != 0.05 {
		t.Errorf("fallback multiplier = %v, want 0.05", got)
	}
	if got := cfg.SourceMultiplier("0X1111111111111111111111111111111111111111"); got != 0.2 {
		t.Errorf("case-insensitive lookup = %v, want 0.2", got)
	}
}
