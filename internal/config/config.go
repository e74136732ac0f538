// Package config loads the node's immutable runtime configuration.
// Values are read once at startup via viper (env vars, flags, and an
// optional TOML file) and frozen into a Config value; nothing in the
// rest of the tree may mutate it after construction.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

func randomID() string {
	return uuid.NewString()
}

// Dandelion holds the stem/fluff relay tuning parameters.
type Dandelion struct {
	FluffProbability uint16        `mapstructure:"fluff_probability" toml:"fluff_probability"`
	TimeoutMin       time.Duration `mapstructure:"timeout_min" toml:"timeout_min"`
	TimeoutMax       time.Duration `mapstructure:"timeout_max" toml:"timeout_max"`
	OutputsMin       int           `mapstructure:"outputs_min" toml:"outputs_min"`
	OutputsMax       int           `mapstructure:"outputs_max" toml:"outputs_max"`
	StemConfirmDepth uint64        `mapstructure:"stem_confirm_depth" toml:"stem_confirm_depth"`
	DummyLifetimeLo  uint64        `mapstructure:"dummy_lifetime_lo" toml:"dummy_lifetime_lo"`
	DummyLifetimeHi  uint64        `mapstructure:"dummy_lifetime_hi" toml:"dummy_lifetime_hi"`
}

// Bandwidth holds per-peer backpressure thresholds.
type Bandwidth struct {
	ChockingBytes uint64 `mapstructure:"chocking_bytes" toml:"chocking_bytes"`
	DrownBytes    uint64 `mapstructure:"drown_bytes" toml:"drown_bytes"`
}

// Mempool holds fluff-pool admission caps.
type Mempool struct {
	MaxCount uint64 `mapstructure:"max_count" toml:"max_count"`
	MaxBytes uint64 `mapstructure:"max_bytes" toml:"max_bytes"`
}

// Bbs holds bulletin-board retention limits.
type Bbs struct {
	MaxCount        uint64        `mapstructure:"max_count" toml:"max_count"`
	MaxBytes        uint64        `mapstructure:"max_bytes" toml:"max_bytes"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" toml:"cleanup_interval"`
}

// Sync holds sync-controller tuning.
type Sync struct {
	MaxConcurrentHdrPacks int           `mapstructure:"max_concurrent_hdr_packs" toml:"max_concurrent_hdr_packs"`
	MaxConcurrentBodies   int           `mapstructure:"max_concurrent_bodies" toml:"max_concurrent_bodies"`
	MaxAutoRollback       uint64        `mapstructure:"max_auto_rollback" toml:"max_auto_rollback"`
	RollbackTimeoutSince  time.Duration `mapstructure:"rollback_timeout_since_tip" toml:"rollback_timeout_since_tip"`
	FastSyncHorizon       uint64        `mapstructure:"fast_sync_horizon" toml:"fast_sync_horizon"`
	TipGapResyncThreshold uint64        `mapstructure:"tip_gap_resync_threshold" toml:"tip_gap_resync_threshold"`
}

// Config is the fully-resolved, immutable node configuration.
type Config struct {
	RuntimeID       string        `mapstructure:"runtime_id" toml:"runtime_id"`
	ListenAddr      string        `mapstructure:"listen_addr" toml:"listen_addr"`
	Listen          bool          `mapstructure:"listen" toml:"listen"`
	ConnectAddrs    []string      `mapstructure:"connect_addrs" toml:"connect_addrs"`
	MinPeers        int           `mapstructure:"min_peers" toml:"min_peers"`
	MaxPeers        int           `mapstructure:"max_peers" toml:"max_peers"`
	BeaconPort      int           `mapstructure:"beacon_port" toml:"beacon_port"`
	MiningThreads   int           `mapstructure:"mining_threads" toml:"mining_threads"`
	VerifyThreads   int           `mapstructure:"verify_threads" toml:"verify_threads"`
	RecoveryPath    string        `mapstructure:"recovery_path" toml:"recovery_path"`
	DataDir         string        `mapstructure:"data_dir" toml:"data_dir"`
	AdminHTTPAddr   string        `mapstructure:"admin_http_addr" toml:"admin_http_addr"`
	AdminEnabled    bool          `mapstructure:"admin_enabled" toml:"admin_enabled"`
	AdminPassword   string        `mapstructure:"admin_password" toml:"admin_password"`
	SeekPeersFreq   time.Duration `mapstructure:"seek_peers_freq" toml:"seek_peers_freq"`
	Dandelion       Dandelion     `mapstructure:"dandelion" toml:"dandelion"`
	Bandwidth       Bandwidth     `mapstructure:"bandwidth" toml:"bandwidth"`
	Mempool         Mempool       `mapstructure:"mempool" toml:"mempool"`
	Bbs             Bbs           `mapstructure:"bbs" toml:"bbs"`
	Sync            Sync          `mapstructure:"sync" toml:"sync"`
}

// Default returns the built-in devnet-shaped configuration.
func Default() Config {
	return Config{
		ListenAddr:    ":21720",
		Listen:        true,
		MinPeers:      4,
		MaxPeers:      32,
		BeaconPort:    21721,
		MiningThreads: 0,
		VerifyThreads: 4,
		DataDir:       "./data",
		AdminHTTPAddr: "127.0.0.1:21722",
		AdminEnabled:  true,
		SeekPeersFreq: 5 * time.Second,
		Dandelion: Dandelion{
			FluffProbability: 1 << 14, // ~25% immediate fluff
			TimeoutMin:       20 * time.Second,
			TimeoutMax:       50 * time.Second,
			OutputsMin:       2,
			OutputsMax:       8,
			StemConfirmDepth: 6,
			DummyLifetimeLo:  144,
			DummyLifetimeHi:  4320,
		},
		Bandwidth: Bandwidth{
			ChockingBytes: 1 << 20,
			DrownBytes:    20 << 20,
		},
		Mempool: Mempool{
			MaxCount: 50_000,
			MaxBytes: 256 << 20,
		},
		Bbs: Bbs{
			MaxCount:        100_000,
			MaxBytes:        64 << 20,
			CleanupInterval: 30 * time.Second,
		},
		Sync: Sync{
			MaxConcurrentHdrPacks: 8,
			MaxConcurrentBodies:   64,
			MaxAutoRollback:       60,
			RollbackTimeoutSince:  5 * time.Second,
			FastSyncHorizon:       1440,
			TipGapResyncThreshold: 64,
		},
	}
}

// Load resolves configuration from an optional TOML file at path, overlaid
// with environment variables prefixed DUSKD_, overlaid again with any flags
// already bound into v. Passing an empty path skips the file layer.
func Load(path string, v *viper.Viper) (Config, error) {
	cfg := Default()
	if v == nil {
		v = viper.New()
	}
	if path != "" {
		var fileCfg Config
		if _, err := toml.DecodeFile(path, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
		cfg = mergeNonZero(cfg, fileCfg)
	}
	v.SetEnvPrefix("DUSKD")
	v.AutomaticEnv()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config overlay: %w", err)
	}
	if cfg.RuntimeID == "" {
		cfg.RuntimeID = randomID()
	}
	return cfg, nil
}

// mergeNonZero overlays the non-zero values of file for ListenAddr,
// ConnectAddrs, MinPeers, MaxPeers, DataDir, AdminHTTPAddr and AdminPassword,
// and replaces the Dandelion, Bandwidth, Mempool and Sync sections whole when
// any field of that section is non-zero. Every other field of file (RuntimeID,
// Listen, BeaconPort, MiningThreads, VerifyThreads, RecoveryPath,
// AdminEnabled, SeekPeersFreq, Bbs) is not read here. Kept list-driven rather
// than reflective.
func mergeNonZero(base, file Config) Config {
	out := base
	if file.ListenAddr != "" {
		out.ListenAddr = file.ListenAddr
	}
	if len(file.ConnectAddrs) > 0 {
		out.ConnectAddrs = file.ConnectAddrs
	}
	if file.MinPeers != 0 {
		out.MinPeers = file.MinPeers
	}
	if file.MaxPeers != 0 {
		out.MaxPeers = file.MaxPeers
	}
	if file.DataDir != "" {
		out.DataDir = file.DataDir
	}
	if file.AdminHTTPAddr != "" {
		out.AdminHTTPAddr = file.AdminHTTPAddr
	}
	if file.AdminPassword != "" {
		out.AdminPassword = file.AdminPassword
	}
	if file.Dandelion != (Dandelion{}) {
		out.Dandelion = file.Dandelion
	}
	if file.Bandwidth != (Bandwidth{}) {
		out.Bandwidth = file.Bandwidth
	}
	if file.Mempool != (Mempool{}) {
		out.Mempool = file.Mempool
	}
	if file.Sync != (Sync{}) {
		out.Sync = file.Sync
	}
	return out
}
