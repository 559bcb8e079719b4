package core

// NodeConfig carries every option the consensus-backed execution core reads
// at startup, matching the configuration surface fixed in the project's
// external interfaces. Loading from files/environment is pkg/config's job;
// this struct is what core actually consumes.
type NodeConfig struct {
	NetworkID                    uint32
	InitialDifficulty            uint32
	DifficultyAdjustmentInterval uint32
	TargetBlockTimeMs            uint64
	MaxTransactionsPerBlock      uint32
	MaxBlockSizeBytes            uint64
	MinerReward                  uint64
	MempoolLimit                 uint32
	EnableSmartContracts         bool
	MaxNonceAttempts             uint64
	MaxTimestampDriftMs          uint64
	StorageKey                   []byte // 32-byte symmetric key for the storage adapter
	NodeSecretKey                []byte // validator's secp256k1 private key bytes

	// SnapshotIntervalBlocks and MaxRetainedBlocks govern optional pruning
	// (see ledger.go's pruneLocked). A MaxRetainedBlocks of zero disables
	// pruning; SnapshotIntervalBlocks selects which pruned heights keep their
	// snapshot, and zero keeps none of them.
	SnapshotIntervalBlocks uint64
	MaxRetainedBlocks      uint64

	// GasPerFeeUnit is the VM's fee->gas multiplier (gas budget = fee *
	// GasPerFeeUnit), kept configurable but identical across all peers.
	GasPerFeeUnit uint64
}

// DefaultNodeConfig returns reasonable defaults for local development and
// tests; production deployments are expected to override every field via
// pkg/config.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		NetworkID:                    1,
		InitialDifficulty:            1,
		DifficultyAdjustmentInterval: 2016,
		TargetBlockTimeMs:            10_000,
		MaxTransactionsPerBlock:      500,
		MaxBlockSizeBytes:            1 << 20,
		MinerReward:                  50,
		MempoolLimit:                 10_000,
		EnableSmartContracts:         true,
		MaxNonceAttempts:             10_000_000,
		MaxTimestampDriftMs:          24 * 60 * 60 * 1000,
		SnapshotIntervalBlocks:       100,
		MaxRetainedBlocks:            0,
		GasPerFeeUnit:                1000,
	}
}
