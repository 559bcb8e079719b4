package core

// ledger.go is the chain manager: it owns the canonical chain, the live
// State, the mempool, and the hardware deferral queue, and is the only
// place block validation/application/creation happens. Every other
// component (VM, mempool, storage) is a dependency this type wires
// together; nothing here is reachable except through Chain's exported
// methods.

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Chain is the in-process chain manager for a single node.
type Chain struct {
	mu sync.Mutex

	cfg NodeConfig

	storage     *Storage
	state       *State
	mempool     *Mempool
	hardware    *HardwareQueue
	authority   *AuthoritySet
	rateLimiter *SyscallRateLimiter

	logger *logrus.Logger

	blocks       []*Block // in-memory tip window; authoritative history lives in storage
	difficulty   uint32
	blockTimesMs []uint64
}

// NewChain wires a fresh or restored chain manager. If storage already
// holds a tip, the chain is restored from it (snapshot-first, then
// tip-hash-only); otherwise a genesis block is constructed and persisted.
func NewChain(cfg NodeConfig, storage *Storage, mempool *Mempool, hardware *HardwareQueue, authority *AuthoritySet, logger *logrus.Logger) (*Chain, error) {
	c := &Chain{
		cfg:         cfg,
		storage:     storage,
		mempool:     mempool,
		hardware:    hardware,
		authority:   authority,
		rateLimiter: NewSyscallRateLimiter(),
		logger:      logger,
		difficulty:  cfg.InitialDifficulty,
	}

	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) init() error {
	if raw, ok, err := c.storage.GetMeta("last_snapshot_height"); err != nil {
		return err
	} else if ok {
		height := decodeU64(raw)
		if snap, ok, err := c.storage.GetSnapshot(height); err != nil {
			return err
		} else if ok {
			if hash, ok, err := c.storage.GetBlockHashByHeight(height); err != nil {
				return err
			} else if ok {
				if tip, ok, err := c.storage.GetBlockByHash(hash); err != nil {
					return err
				} else if ok {
					c.state = snap
					c.blocks = []*Block{tip}
					return c.restoreDifficulty()
				}
			}
			// Tip block itself has been pruned: fall through to tip-hash path.
		}
	}

	if tipHash, ok, err := c.storage.Tip(); err != nil {
		return err
	} else if ok {
		tip, ok, err := c.storage.GetBlockByHash(tipHash)
		if err != nil {
			return err
		}
		if ok {
			c.state = NewState()
			c.blocks = []*Block{tip}
			// Load the snapshot persisted at the tip's own height, if any;
			// without one the state stays empty.
			if snap, ok, err := c.storage.GetSnapshot(tip.Index); err != nil {
				return err
			} else if ok {
				c.state = snap
			}
			return c.restoreDifficulty()
		}
	}

	return c.initGenesis()
}

func (c *Chain) restoreDifficulty() error {
	raw, ok, err := c.storage.GetMeta("difficulty")
	if err != nil {
		return err
	}
	if ok {
		c.difficulty = uint32(decodeU64(raw))
	}
	return nil
}

func (c *Chain) initGenesis() error {
	c.state = NewState()
	genesis := &Block{
		Index:       0,
		TimestampMs: 0,
		PrevHash:    Hash{},
		Nonce:       0,
		Difficulty:  c.cfg.InitialDifficulty,
		StateRoot:   c.state.StateRoot(),
	}
	genesis.Hash = BlockHash(genesis)

	if err := c.storage.PutBlock(genesis); err != nil {
		return err
	}
	if err := c.storage.SetTip(genesis.Hash); err != nil {
		return err
	}
	if err := c.storage.PutSnapshot(0, c.state); err != nil {
		return err
	}
	if err := c.storage.PutMeta("difficulty", encodeU64(uint64(c.cfg.InitialDifficulty))); err != nil {
		return err
	}

	c.blocks = []*Block{genesis}
	c.difficulty = c.cfg.InitialDifficulty
	return nil
}

func encodeU64(v uint64) []byte {
	e := newEncoder()
	e.u64(v)
	return e.bytes()
}

func decodeU64(b []byte) uint64 {
	d := newDecoder(b)
	v, _ := d.u64()
	return v
}

// Tip returns the current chain tip block.
func (c *Chain) Tip() *Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[len(c.blocks)-1]
}

// Height returns the current chain height (tip index).
func (c *Chain) Height() uint64 {
	return c.Tip().Index
}

// Balance returns addr's current balance against the live state.
func (c *Chain) Balance(addr Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Balance(addr)
}

// Nonce returns addr's current nonce against the live state.
func (c *Chain) Nonce(addr Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Nonce(addr)
}

// ValidateTransaction revalidates tx against the live state, never trusting
// a previous admission check.
func (c *Chain) ValidateTransaction(tx *Transaction, nowMs uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ValidateTransaction(c.state, &c.cfg, tx, c.blocks[len(c.blocks)-1].Index, nowMs, false)
}

// SubmitTransaction revalidates and admits tx into the mempool.
func (c *Chain) SubmitTransaction(tx Transaction, nowMs uint64) error {
	if err := c.ValidateTransaction(&tx, nowMs); err != nil {
		return err
	}
	return c.mempool.Add(tx, nowMs)
}

// ApplyBlock validates and applies b to the chain, mutating state and
// persisting the result. Any failure leaves state unchanged.
func (c *Chain) ApplyBlock(b *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tip := c.blocks[len(c.blocks)-1]
	if b.PrevHash != tip.Hash {
		return ErrPrevHashMismatch
	}
	if err := c.authority.VerifyBlockAuthorship(b); err != nil {
		return err
	}

	height := tip.Index + 1
	scratch := c.state.Clone()

	for i := range b.Transactions {
		tx := &b.Transactions[i]
		isRewardTx := i == len(b.Transactions)-1 && tx.From == nil
		if err := ValidateTransaction(scratch, &c.cfg, tx, height, b.TimestampMs, isRewardTx); err != nil {
			return fmt.Errorf("apply_block: tx %d: %w", i, err)
		}
		if err := c.applyTransaction(scratch, b, tx, c.hardware, c.rateLimiter); err != nil {
			return fmt.Errorf("apply_block: tx %d: %w", i, err)
		}
	}

	if scratch.StateRoot() != b.StateRoot {
		return fmt.Errorf("apply_block: %w", ErrStateRootMismatch)
	}

	c.state = scratch
	b.Index = height
	c.blocks = append(c.blocks, b)

	if len(c.blocks) >= 7 {
		c.hardware.Commit(c.blocks[len(c.blocks)-7].Hash)
	}

	if err := c.storage.PutBlock(b); err != nil {
		return err
	}
	if err := c.storage.SetTip(b.Hash); err != nil {
		return err
	}
	if err := c.storage.PutSnapshot(height, c.state); err != nil {
		return err
	}
	if err := c.storage.PutMeta("last_snapshot_height", encodeU64(height)); err != nil {
		return err
	}

	c.blockTimesMs = append(c.blockTimesMs, b.TimestampMs)
	if uint32(len(c.blockTimesMs)) > c.cfg.DifficultyAdjustmentInterval {
		c.blockTimesMs = c.blockTimesMs[1:]
	}
	if c.cfg.DifficultyAdjustmentInterval > 0 && height%uint64(c.cfg.DifficultyAdjustmentInterval) == 0 {
		c.difficulty = retargetDifficulty(c.logger, c.difficulty, c.blockTimesMs, c.cfg.TargetBlockTimeMs)
		if err := c.storage.PutMeta("difficulty", encodeU64(uint64(c.difficulty))); err != nil {
			return err
		}
	}

	c.pruneLocked()

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"height":     height,
			"hash":       b.Hash.Hex(),
			"state_root": b.StateRoot.Hex(),
			"validator":  b.ValidatorID,
			"difficulty": b.Difficulty,
		}).Info("ledger: block applied")
	}
	return nil
}

func (c *Chain) applyTransaction(st *State, b *Block, tx *Transaction, hw *HardwareQueue, rl *SyscallRateLimiter) error {
	switch tx.Kind {
	case TxAccount:
		if tx.From != nil {
			if err := st.Debit(*tx.From, tx.Amount+tx.Fee); err != nil {
				return err
			}
			st.IncrementNonce(*tx.From)
		}
		if tx.To != nil {
			st.Credit(*tx.To, tx.Amount)
		}
		return nil

	case TxUtxo:
		id := TxID(tx)
		for _, in := range tx.Inputs {
			if _, err := st.SpendUTXO(UTXOKey{TxID: in.PrevTxID, Index: in.Index}); err != nil {
				return err
			}
		}
		for i, out := range tx.Outputs {
			st.AddUTXO(UTXOKey{TxID: id, Index: uint32(i)}, out)
		}
		return nil

	case TxContract:
		var caller Address
		if tx.From != nil {
			caller = *tx.From
		}
		var contract Address
		if tx.To != nil {
			contract = *tx.To
		}
		ctx := &BlockchainContext{
			Timestamp:   b.TimestampMs,
			Index:       b.Index,
			Caller:      caller,
			Contract:    contract,
			Value:       tx.Amount,
			State:       st,
			Hardware:    hw,
			BlockHash:   b.Hash,
			RateLimiter: rl,
		}
		gas := tx.Fee * c.cfg.GasPerFeeUnit
		vm := NewVM(tx.Data, gas, ctx)
		if _, err := vm.Run(); err != nil {
			return err
		}
		return nil

	default:
		return ErrBadSignature
	}
}

// pruneLocked removes the oldest retained block once the retained window
// exceeds cfg.MaxRetainedBlocks. Callers must hold c.mu. ApplyBlock already
// persists an accurate state snapshot at every height (see the PutSnapshot
// call above), so the block being dropped here is never the one
// last_snapshot_height points at — init's snapshot-recovery path always
// resolves to a still-retained tip. The snapshot at the pruned height is
// reclaimed unless it falls on the configured archival interval, since every
// later height's own snapshot already supersedes it for recovery.
func (c *Chain) pruneLocked() {
	if c.cfg.MaxRetainedBlocks == 0 || uint64(len(c.blocks)) <= c.cfg.MaxRetainedBlocks {
		return
	}
	oldest := c.blocks[0]
	if err := c.storage.DeleteBlock(oldest.Hash); err != nil && c.logger != nil {
		c.logger.WithError(err).Warn("ledger: prune delete failed")
	}
	archival := c.cfg.SnapshotIntervalBlocks > 0 && oldest.Index%c.cfg.SnapshotIntervalBlocks == 0
	if !archival {
		if err := c.storage.DeleteSnapshot(oldest.Index); err != nil && c.logger != nil {
			c.logger.WithError(err).Warn("ledger: snapshot cleanup failed")
		}
	}
	c.blocks = c.blocks[1:]
}

// CreateBlock assembles a new block from the mempool's highest-priority
// transactions, mines it to satisfy the current difficulty, and returns it
// unsigned (the caller is responsible for PoA authorship via AuthoritySet).
func (c *Chain) CreateBlock(miner Address, maxTx int, nowMs uint64) (*Block, error) {
	c.mu.Lock()
	tip := c.blocks[len(c.blocks)-1]
	difficulty := c.difficulty
	scratch := c.state.Clone()
	hwScratch := c.hardware.Clone()
	rlScratch := c.rateLimiter.Clone()
	height := tip.Index + 1
	candidates := c.mempool.Top(maxTx)
	c.mu.Unlock()

	selected := make([]Transaction, 0, len(candidates))
	for i := range candidates {
		tx := &candidates[i]
		if err := ValidateTransaction(scratch, &c.cfg, tx, height, nowMs, false); err != nil {
			continue // dropped silently, per the chain manager's admission contract
		}
		if err := c.applyTransactionScratch(scratch, hwScratch, rlScratch, tip.Hash, height, nowMs, tx); err != nil {
			continue
		}
		selected = append(selected, *tx)
	}

	reward := NewCoinbaseTx(c.cfg.NetworkID, nowMs, miner, c.cfg.MinerReward)
	scratch.Credit(miner, c.cfg.MinerReward)
	selected = append(selected, reward)

	b := &Block{
		Index:        height,
		TimestampMs:  nowMs,
		PrevHash:     tip.Hash,
		Difficulty:   difficulty,
		Transactions: selected,
		StateRoot:    scratch.StateRoot(),
	}

	var nonce uint64
	for {
		b.Nonce = nonce
		hash := BlockHash(b)
		if meetsDifficulty(hash, difficulty) {
			b.Hash = hash
			return b, nil
		}
		nonce++
		if nonce > c.cfg.MaxNonceAttempts {
			return nil, fmt.Errorf("create_block: exceeded max_nonce_attempts")
		}
	}
}

// applyTransactionScratch mirrors applyTransaction for the projection pass in
// CreateBlock, where no persisted block exists yet to reference for VM
// context. hw and rl are throwaway clones of the live hardware queue and
// rate limiter (see HardwareQueue.Clone / SyscallRateLimiter.Clone): a
// speculative candidate tx must never queue a deferred action or consume a
// rate-limit slot against the state apply_block will actually check when
// this same block is later applied.
func (c *Chain) applyTransactionScratch(st *State, hw *HardwareQueue, rl *SyscallRateLimiter, prevHash Hash, height, nowMs uint64, tx *Transaction) error {
	b := &Block{Index: height, TimestampMs: nowMs, Hash: prevHash}
	return c.applyTransaction(st, b, tx, hw, rl)
}
