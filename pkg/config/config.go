package config

// Package config provides a reusable loader for node configuration files and
// environment variables. It is versioned so that applications can depend on
// a stable API contract.
//
// Version: v0.2.0

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/viper"

	"github.com/synnergy-labs/hb-core/core"
	"github.com/synnergy-labs/hb-core/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.2.0"

// Config represents the unified configuration for a node. It mirrors the
// structure of the YAML files under cmd/config and is converted into a
// core.NodeConfig plus the handful of startup-only fields core itself does
// not need to know about (listen address, data directory, logging).
type Config struct {
	Network struct {
		ID             string   `mapstructure:"id" json:"id"`
		NetworkID      uint32   `mapstructure:"network_id" json:"network_id"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		P2PPort        int      `mapstructure:"p2p_port" json:"p2p_port"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		InitialDifficulty            uint32 `mapstructure:"initial_difficulty" json:"initial_difficulty"`
		DifficultyAdjustmentInterval uint32 `mapstructure:"difficulty_adjustment_interval" json:"difficulty_adjustment_interval"`
		TargetBlockTimeMs            uint64 `mapstructure:"target_block_time_ms" json:"target_block_time_ms"`
		MaxNonceAttempts             uint64 `mapstructure:"max_nonce_attempts" json:"max_nonce_attempts"`
		MaxTimestampDriftMs          uint64 `mapstructure:"max_timestamp_drift_ms" json:"max_timestamp_drift_ms"`
	} `mapstructure:"consensus" json:"consensus"`

	Block struct {
		MaxTransactionsPerBlock uint32 `mapstructure:"max_transactions_per_block" json:"max_transactions_per_block"`
		MaxBlockSizeBytes       uint64 `mapstructure:"max_block_size_bytes" json:"max_block_size_bytes"`
		MinerReward             uint64 `mapstructure:"miner_reward" json:"miner_reward"`
	} `mapstructure:"block" json:"block"`

	Mempool struct {
		Limit uint32 `mapstructure:"limit" json:"limit"`
	} `mapstructure:"mempool" json:"mempool"`

	VM struct {
		EnableSmartContracts bool   `mapstructure:"enable_smart_contracts" json:"enable_smart_contracts"`
		GasPerFeeUnit        uint64 `mapstructure:"gas_per_fee_unit" json:"gas_per_fee_unit"`
	} `mapstructure:"vm" json:"vm"`

	Storage struct {
		DBPath                 string `mapstructure:"db_path" json:"db_path"`
		StorageKeyHex          string `mapstructure:"storage_key_hex" json:"storage_key_hex"`
		SnapshotIntervalBlocks uint64 `mapstructure:"snapshot_interval_blocks" json:"snapshot_interval_blocks"`
		MaxRetainedBlocks      uint64 `mapstructure:"max_retained_blocks" json:"max_retained_blocks"`
	} `mapstructure:"storage" json:"storage"`

	Node struct {
		ID           string `mapstructure:"id" json:"id"`
		SecretKeyHex string `mapstructure:"secret_key_hex" json:"secret_key_hex"`
	} `mapstructure:"node" json:"node"`

	// Validators is the fixed PoA authority set. Every node in the network
	// must configure the identical list.
	Validators []struct {
		ID        string `mapstructure:"id" json:"id"`
		PubKeyHex string `mapstructure:"pubkey_hex" json:"pubkey_hex"`
	} `mapstructure:"validators" json:"validators"`

	// Hardware lists the sensor/actuator devices this node's hardware
	// deferral queue registers at startup.
	Hardware []struct {
		ID   uint64 `mapstructure:"id" json:"id"`
		Name string `mapstructure:"name" json:"name"`
	} `mapstructure:"hardware" json:"hardware"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // env vars named after an upper-cased key (no prefix) override it

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the HB_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("HB_ENV", ""))
}

// ToNodeConfig converts the loaded configuration into the core.NodeConfig
// shape plus the node's validator secret key, decoding the hex-encoded key
// material along the way. It starts from core.DefaultNodeConfig, and a field
// left at zero keeps its default, except miner_reward,
// enable_smart_contracts, snapshot_interval_blocks and max_retained_blocks:
// those are always copied as given, so leaving them out sets them to zero
// (or false).
func (c *Config) ToNodeConfig() (core.NodeConfig, error) {
	cfg := core.DefaultNodeConfig()

	if c.Network.NetworkID != 0 {
		cfg.NetworkID = c.Network.NetworkID
	}
	if c.Consensus.InitialDifficulty != 0 {
		cfg.InitialDifficulty = c.Consensus.InitialDifficulty
	}
	if c.Consensus.DifficultyAdjustmentInterval != 0 {
		cfg.DifficultyAdjustmentInterval = c.Consensus.DifficultyAdjustmentInterval
	}
	if c.Consensus.TargetBlockTimeMs != 0 {
		cfg.TargetBlockTimeMs = c.Consensus.TargetBlockTimeMs
	}
	if c.Consensus.MaxNonceAttempts != 0 {
		cfg.MaxNonceAttempts = c.Consensus.MaxNonceAttempts
	}
	if c.Consensus.MaxTimestampDriftMs != 0 {
		cfg.MaxTimestampDriftMs = c.Consensus.MaxTimestampDriftMs
	}
	if c.Block.MaxTransactionsPerBlock != 0 {
		cfg.MaxTransactionsPerBlock = c.Block.MaxTransactionsPerBlock
	}
	if c.Block.MaxBlockSizeBytes != 0 {
		cfg.MaxBlockSizeBytes = c.Block.MaxBlockSizeBytes
	}
	cfg.MinerReward = c.Block.MinerReward
	if c.Mempool.Limit != 0 {
		cfg.MempoolLimit = c.Mempool.Limit
	}
	cfg.EnableSmartContracts = c.VM.EnableSmartContracts
	if c.VM.GasPerFeeUnit != 0 {
		cfg.GasPerFeeUnit = c.VM.GasPerFeeUnit
	}
	cfg.SnapshotIntervalBlocks = c.Storage.SnapshotIntervalBlocks
	cfg.MaxRetainedBlocks = c.Storage.MaxRetainedBlocks

	if c.Storage.StorageKeyHex != "" {
		key, err := hex.DecodeString(c.Storage.StorageKeyHex)
		if err != nil {
			return core.NodeConfig{}, utils.Wrap(err, "decode storage_key_hex")
		}
		cfg.StorageKey = key
	}
	if c.Node.SecretKeyHex != "" {
		key, err := hex.DecodeString(c.Node.SecretKeyHex)
		if err != nil {
			return core.NodeConfig{}, utils.Wrap(err, "decode node.secret_key_hex")
		}
		cfg.NodeSecretKey = key
	}

	return cfg, nil
}

// ToValidators decodes the configured PoA authority set into core.Validator
// values, failing on any malformed pubkey_hex entry.
func (c *Config) ToValidators() ([]core.Validator, error) {
	out := make([]core.Validator, 0, len(c.Validators))
	for _, v := range c.Validators {
		pub, err := hex.DecodeString(v.PubKeyHex)
		if err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("decode validator %q pubkey_hex", v.ID))
		}
		out = append(out, core.Validator{ID: v.ID, PubKey: pub})
	}
	return out, nil
}

// ToHardware returns the configured device registry as deviceID -> name.
func (c *Config) ToHardware() map[uint64]string {
	out := make(map[uint64]string, len(c.Hardware))
	for _, d := range c.Hardware {
		out[d.ID] = d.Name
	}
	return out
}
