package core

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

type testChain struct {
	chain     *Chain
	mempool   *Mempool
	hardware  *HardwareQueue
	authority *AuthoritySet
	storage   *Storage
	priv      *btcec.PrivateKey
	validator string
}

func easyConfig() NodeConfig {
	cfg := DefaultNodeConfig()
	cfg.InitialDifficulty = 0 // meetsDifficulty(_, 0) is always true: mining is instant in tests
	cfg.DifficultyAdjustmentInterval = 0
	cfg.MaxNonceAttempts = 1000
	return cfg
}

func newTestChain(t *testing.T, cfg NodeConfig) *testChain {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	storage, err := OpenStorage(t.TempDir(), key, nil)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	priv, err := GenerateKey()
	require.NoError(t, err)
	const validatorID = "v1"

	mempool := NewMempool(int(cfg.MempoolLimit))
	hardware := NewHardwareQueue()
	authority := NewAuthoritySet(nil, []Validator{{ID: validatorID, PubKey: priv.PubKey().SerializeCompressed()}})

	chain, err := NewChain(cfg, storage, mempool, hardware, authority, nil)
	require.NoError(t, err)

	return &testChain{
		chain:     chain,
		mempool:   mempool,
		hardware:  hardware,
		authority: authority,
		storage:   storage,
		priv:      priv,
		validator: validatorID,
	}
}

// mineAndApply builds the next block from the mempool, authors it, and
// applies it, returning the applied block.
func (tc *testChain) mineAndApply(t *testing.T, miner Address, nowMs uint64) *Block {
	t.Helper()
	b, err := tc.chain.CreateBlock(miner, 10, nowMs)
	require.NoError(t, err)
	require.NoError(t, tc.authority.AuthorBlock(tc.validator, tc.priv, b))
	require.NoError(t, tc.chain.ApplyBlock(b))
	return b
}

func TestNewChainInitializesGenesis(t *testing.T) {
	tc := newTestChain(t, easyConfig())
	require.Equal(t, uint64(0), tc.chain.Height())
	tip := tc.chain.Tip()
	require.True(t, tip.PrevHash.IsZero())
}

func TestCreateAuthorApplySimpleTransfer(t *testing.T) {
	cfg := easyConfig()
	tc := newTestChain(t, cfg)
	miner := Address{1}

	b := tc.mineAndApply(t, miner, 1000)
	require.Equal(t, uint64(1), b.Index)
	require.Equal(t, uint64(1), tc.chain.Height())
	require.Equal(t, cfg.MinerReward, tc.chain.Balance(miner))
}

func TestApplyBlockRejectsWrongPrevHash(t *testing.T) {
	tc := newTestChain(t, easyConfig())
	b, err := tc.chain.CreateBlock(Address{1}, 10, 1000)
	require.NoError(t, err)
	b.PrevHash = Hash{0xff}
	require.NoError(t, tc.authority.AuthorBlock(tc.validator, tc.priv, b))

	err = tc.chain.ApplyBlock(b)
	require.ErrorIs(t, err, ErrPrevHashMismatch)
}

func TestApplyBlockRejectsUnauthoredBlock(t *testing.T) {
	tc := newTestChain(t, easyConfig())
	b, err := tc.chain.CreateBlock(Address{1}, 10, 1000)
	require.NoError(t, err)
	// never authored: ValidatorID is empty
	err = tc.chain.ApplyBlock(b)
	require.ErrorIs(t, err, ErrNotAValidator)
}

func TestSubmitTransactionIntoMempoolAndMine(t *testing.T) {
	cfg := easyConfig()
	tc := newTestChain(t, cfg)
	miner := Address{1}

	sender, err := GenerateKey()
	require.NoError(t, err)
	senderAddr := DeriveAddress(sender.PubKey().SerializeCompressed())

	tc.mineAndApply(t, senderAddr, 1000) // fund sender via coinbase reward

	recipient := Address{9}
	tx := acctTx(senderAddr, 1, 5, 2000)
	tx.NetworkID = cfg.NetworkID
	tx.To = &recipient
	tx.Amount = 10
	require.NoError(t, SignTransaction(sender, &tx))

	require.NoError(t, tc.chain.SubmitTransaction(tx, 2000))
	require.Equal(t, 1, tc.mempool.Len())

	tc.mineAndApply(t, miner, 3000)

	require.Equal(t, uint64(10), tc.chain.Balance(recipient))
	require.Equal(t, cfg.MinerReward-10-5, tc.chain.Balance(senderAddr))
}

func TestApplyBlockAtomicRollbackOnInvalidTx(t *testing.T) {
	cfg := easyConfig()
	tc := newTestChain(t, cfg)
	miner := Address{1}
	tc.mineAndApply(t, miner, 1000)

	before := tc.chain.Balance(miner)

	sender, err := GenerateKey()
	require.NoError(t, err)
	senderAddr := DeriveAddress(sender.PubKey().SerializeCompressed())

	recipient := Address{9}
	overdraft := acctTx(senderAddr, 1, 1, 2000) // sender has 0 balance
	overdraft.NetworkID = cfg.NetworkID
	overdraft.To = &recipient
	overdraft.Amount = 1000000
	require.NoError(t, SignTransaction(sender, &overdraft))

	b, err := tc.chain.CreateBlock(miner, 10, 2000)
	require.NoError(t, err)
	// Force the invalid tx directly into the block, bypassing CreateBlock's
	// own filtering, to exercise ApplyBlock's atomic rejection.
	b.Transactions = append([]Transaction{overdraft}, b.Transactions...)
	b.StateRoot = Hash{} // stale on purpose; ApplyBlock must fail before using it
	require.NoError(t, tc.authority.AuthorBlock(tc.validator, tc.priv, b))

	err = tc.chain.ApplyBlock(b)
	require.Error(t, err)
	require.Equal(t, uint64(1), tc.chain.Height(), "rejected block must not advance the chain")
	require.Equal(t, before, tc.chain.Balance(miner), "state must be unchanged after a rejected block")
}

func TestHardwareFinalityCommitsAtSixConfirmations(t *testing.T) {
	cfg := easyConfig()
	tc := newTestChain(t, cfg)
	tc.hardware.RegisterDevice(1, "valve")

	miner := Address{1}
	b1 := tc.mineAndApply(t, miner, 1000)

	require.NoError(t, tc.hardware.Queue(b1.Hash, 1, 77, 1000))
	v, err := tc.hardware.ReadSensor(1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v, "queued write must not be visible before finality")

	for i := 0; i < 5; i++ {
		tc.mineAndApply(t, miner, uint64(2000+i*1000))
	}
	v, _ = tc.hardware.ReadSensor(1)
	require.Equal(t, uint64(0), v, "still not finalized after five confirming blocks")

	tc.mineAndApply(t, miner, 8000)
	v, err = tc.hardware.ReadSensor(1)
	require.NoError(t, err)
	require.Equal(t, uint64(77), v, "write must be committed once six blocks confirm it")
}

func TestCreateBlockProjectsContractSyscallsOnThrowawayCopies(t *testing.T) {
	cfg := easyConfig()
	tc := newTestChain(t, cfg)
	tc.hardware.RegisterDevice(42, "valve")

	caller, err := GenerateKey()
	require.NoError(t, err)
	callerAddr := DeriveAddress(caller.PubKey().SerializeCompressed())
	contractAddr := Address{7}
	tc.chain.state.GrantCapability(contractAddr, Capability{Type: CapWriteActuator, DeviceID: 42})

	// value=123, deviceID=42, then the syscall id: execSyscall pops id,
	// then deviceID, then value (LIFO), so operands push in reverse order.
	code := append(pushOp(123), pushOp(42)...)
	code = append(code, pushOp(SyscallWriteActuator)...)
	code = append(code, byte(OpSyscall), byte(OpStop))

	tx := Transaction{
		Version:     1,
		Kind:        TxContract,
		NetworkID:   cfg.NetworkID,
		TimestampMs: 1000,
		From:        &callerAddr,
		To:          &contractAddr,
		Fee:         3,
		Data:        code,
	}
	require.NoError(t, SignTransaction(caller, &tx))
	require.NoError(t, tc.chain.SubmitTransaction(tx, 1000))

	genesisHash := tc.chain.Tip().Hash
	miner := Address{1}

	// A validator authoring its own block containing this syscall-bearing
	// contract tx must not have create_block's projection pass consume the
	// live rate-limit slot or hardware queue that apply_block checks against
	// moments later for the same block.
	b := tc.mineAndApply(t, miner, 1000)

	require.Empty(t, tc.hardware.PendingFor(genesisHash),
		"create_block's projection must not leak a deferred action into the live hardware queue")

	pending := tc.hardware.PendingFor(b.Hash)
	require.Len(t, pending, 1)
	require.Equal(t, uint64(42), pending[0].DeviceID)
	require.Equal(t, uint64(123), pending[0].Value)

	v, err := tc.hardware.ReadSensor(42)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v, "deferred write must not be visible before finality")
}

func TestChainRecoversFromSnapshotAfterReopen(t *testing.T) {
	cfg := easyConfig()
	cfg.SnapshotIntervalBlocks = 1
	cfg.MaxRetainedBlocks = 2

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	dir := t.TempDir()
	storage, err := OpenStorage(dir, key, nil)
	require.NoError(t, err)

	priv, err := GenerateKey()
	require.NoError(t, err)
	authority := NewAuthoritySet(nil, []Validator{{ID: "v1", PubKey: priv.PubKey().SerializeCompressed()}})
	mempool := NewMempool(int(cfg.MempoolLimit))
	hardware := NewHardwareQueue()

	chain, err := NewChain(cfg, storage, mempool, hardware, authority, nil)
	require.NoError(t, err)

	miner := Address{3}
	for i := 0; i < 5; i++ {
		b, err := chain.CreateBlock(miner, 10, uint64(1000*(i+1)))
		require.NoError(t, err)
		require.NoError(t, authority.AuthorBlock("v1", priv, b))
		require.NoError(t, chain.ApplyBlock(b))
	}
	balanceBefore := chain.Balance(miner)
	heightBefore := chain.Height()
	storage.Close()

	storage2, err := OpenStorage(dir, key, nil)
	require.NoError(t, err)
	defer storage2.Close()

	chain2, err := NewChain(cfg, storage2, NewMempool(int(cfg.MempoolLimit)), NewHardwareQueue(), authority, nil)
	require.NoError(t, err)

	require.Equal(t, heightBefore, chain2.Height())
	require.Equal(t, balanceBefore, chain2.Balance(miner))
}
