package main

// node.go wires the configuration and storage layers into a running set of
// core components shared by every subcommand. Query-only commands (account
// balance, block get) build a Chain purely to replay stored state and never
// start the network listener or the block-production loop.

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/synnergy-labs/hb-core/core"
	pkgconfig "github.com/synnergy-labs/hb-core/pkg/config"
)

// nodeHandles bundles the components a running or query-only node needs.
type nodeHandles struct {
	cfg       core.NodeConfig
	rawCfg    *pkgconfig.Config
	storage   *core.Storage
	mempool   *core.Mempool
	hardware  *core.HardwareQueue
	authority *core.AuthoritySet
	chain     *core.Chain
	logger    *logrus.Logger
}

// loadEnvFile loads a .env file into the process environment if present; a
// missing file is not an error, it simply means nothing to override.
func loadEnvFile(path string) {
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// loadNodeConfig loads pkg/config's YAML+env configuration for env and
// converts it into a core.NodeConfig, along with the raw Config for fields
// core does not itself consume (listen address, db path, logging).
func loadNodeConfig(env string) (core.NodeConfig, *pkgconfig.Config, error) {
	cfg, err := pkgconfig.Load(env)
	if err != nil {
		return core.NodeConfig{}, nil, fmt.Errorf("load config: %w", err)
	}
	nodeCfg, err := cfg.ToNodeConfig()
	if err != nil {
		return core.NodeConfig{}, nil, fmt.Errorf("convert config: %w", err)
	}
	return nodeCfg, cfg, nil
}

// openNode opens storage and builds the mempool/hardware/authority/chain
// stack from the fixed PoA validator set and hardware registry configured
// for env.
func openNode(env string) (*nodeHandles, error) {
	nodeCfg, rawCfg, err := loadNodeConfig(env)
	if err != nil {
		return nil, err
	}
	logger := newLogger(rawCfg.Logging.Level)

	if len(nodeCfg.StorageKey) != 32 {
		return nil, fmt.Errorf("openNode: storage.storage_key_hex must decode to exactly 32 bytes")
	}

	storage, err := core.OpenStorage(rawCfg.Storage.DBPath, nodeCfg.StorageKey, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	validators, err := rawCfg.ToValidators()
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("decode validators: %w", err)
	}

	mempool := core.NewMempool(int(nodeCfg.MempoolLimit))
	hardware := core.NewHardwareQueue()
	for id, name := range rawCfg.ToHardware() {
		hardware.RegisterDevice(id, name)
	}
	authority := core.NewAuthoritySet(logger, validators)

	chain, err := core.NewChain(nodeCfg, storage, mempool, hardware, authority, logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("init chain: %w", err)
	}

	return &nodeHandles{
		cfg:       nodeCfg,
		rawCfg:    rawCfg,
		storage:   storage,
		mempool:   mempool,
		hardware:  hardware,
		authority: authority,
		chain:     chain,
		logger:    logger,
	}, nil
}

// loadSecretKey decodes the node's own secp256k1 private key from its
// configured hex-encoded form.
func loadSecretKey(rawCfg *pkgconfig.Config) (*btcec.PrivateKey, error) {
	if rawCfg.Node.SecretKeyHex == "" {
		return nil, fmt.Errorf("node.secret_key_hex is not configured")
	}
	keyBytes, err := hex.DecodeString(rawCfg.Node.SecretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode node.secret_key_hex: %w", err)
	}
	return core.KeyFromBytes(keyBytes)
}

func (n *nodeHandles) Close() {
	if n.storage != nil {
		n.storage.Close()
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
