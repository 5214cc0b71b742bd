// Package config loads the process-wide deployment configuration: RPC
// endpoints, the block-engine URL, known program ids and the handful of
// numeric knobs that are not part of a per-session BotConfig. Per-session
// config (mode, snipe/volume parameters) arrives from the edge at
// Session.Start time and is never read from disk by this package.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// ProcessConfig is the static deployment config, loaded once at startup.
type ProcessConfig struct {
	MainnetRPCURLs []string `mapstructure:"mainnet_rpc_urls"`
	DevnetRPCURLs  []string `mapstructure:"devnet_rpc_urls"`
	MainnetWSURL   string   `mapstructure:"mainnet_ws_url"`
	DevnetWSURL    string   `mapstructure:"devnet_ws_url"`
	BlockEngineURL string   `mapstructure:"block_engine_url"`

	RaydiumProgramID string `mapstructure:"raydium_program_id"`
	PumpFunProgramID string `mapstructure:"pumpfun_program_id"`

	RPCSemaphoreCapacity int `mapstructure:"rpc_semaphore_capacity"`
	DedupSetCap          int `mapstructure:"dedup_set_cap"`
	DedupSetTrimTo       int `mapstructure:"dedup_set_trim_to"`
	LogRingCap           int `mapstructure:"log_ring_cap"`
	HeartbeatIntervalSec int `mapstructure:"heartbeat_interval_sec"`

	DebugLogging bool `mapstructure:"debug_logging"`
}

const (
	DefaultRPCSemaphoreCapacity = 2
	DefaultDedupSetCap          = 3000
	DefaultDedupSetTrimTo       = 2000
	DefaultLogRingCap           = 500
	DefaultHeartbeatIntervalSec = 15
)

// Load reads a YAML/JSON/TOML config file (anything viper supports) from
// path and overlays the core's fixed defaults.
func Load(path string) (*ProcessConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("rpc_semaphore_capacity", DefaultRPCSemaphoreCapacity)
	v.SetDefault("dedup_set_cap", DefaultDedupSetCap)
	v.SetDefault("dedup_set_trim_to", DefaultDedupSetTrimTo)
	v.SetDefault("log_ring_cap", DefaultLogRingCap)
	v.SetDefault("heartbeat_interval_sec", DefaultHeartbeatIntervalSec)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg ProcessConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *ProcessConfig) error {
	if len(cfg.MainnetRPCURLs) == 0 {
		return errors.New("mainnet_rpc_urls must not be empty")
	}
	if cfg.RaydiumProgramID == "" {
		return errors.New("raydium_program_id is required")
	}
	if cfg.PumpFunProgramID == "" {
		return errors.New("pumpfun_program_id is required")
	}
	if cfg.RPCSemaphoreCapacity <= 0 {
		return errors.New("rpc_semaphore_capacity must be positive")
	}
	if cfg.DedupSetTrimTo >= cfg.DedupSetCap {
		return errors.New("dedup_set_trim_to must be smaller than dedup_set_cap")
	}
	return nil
}
