// Package core implements the consensus-backed execution core of an hb-core
// node: chain management, the deterministic IoT contract VM, PoA block
// authorship, the mempool, and the hardware deferral queue.
package core

import (
	"encoding/hex"
	"fmt"
)

// common_structs.go centralises the data model shared across the rest of
// core: addresses, hashes, transactions, blocks, accounts and the PoA
// validator type. Operational logic lives in the other files.

// Address is the 20-byte account identifier derived from a public key.
// Its human-readable form is "hb" + hex(bytes); canonical encoding (used
// for hashing and signing) always uses the fixed-width raw bytes.
type Address [20]byte

// AddressZero is the all-zero address that IsZero compares against.
// Coinbase/reward transactions mark their missing sender with a nil From,
// not with this value.
var AddressZero = Address{}

// Bytes returns a copy of the address's raw bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, 20)
	copy(out, a[:])
	return out
}

// Hex returns the "hb"-prefixed hex representation of the address.
func (a Address) Hex() string { return "hb" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

// Short returns a truncated form suitable for log lines.
func (a Address) Short() string {
	full := hex.EncodeToString(a[:])
	if len(full) <= 8 {
		return "hb" + full
	}
	return fmt.Sprintf("hb%s..%s", full[:4], full[len(full)-4:])
}

// IsZero reports whether the address is the zero address.
func (a Address) IsZero() bool { return a == AddressZero }

// ParseAddress decodes an "hb"-prefixed hex address string.
func ParseAddress(s string) (Address, error) {
	var a Address
	if len(s) != 42 || s[:2] != "hb" {
		return a, fmt.Errorf("address: malformed %q", s)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return a, fmt.Errorf("address: %w", err)
	}
	copy(a[:], b)
	return a, nil
}

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) Short() string {
	full := h.Hex()
	if len(full) <= 8 {
		return full
	}
	return fmt.Sprintf("%s..%s", full[:4], full[len(full)-4:])
}

// IsZero reports whether h is the zero hash (the genesis block's prev_hash).
func (h Hash) IsZero() bool { return h == Hash{} }

// ParseHash decodes a hex-encoded 32-byte hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("hash: %w", err)
	}
	if len(b) != 32 {
		return h, fmt.Errorf("hash: expected 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// TxKind tags which semantics a transaction carries.
type TxKind uint8

const (
	TxAccount TxKind = iota
	TxUtxo
	TxContract
)

func (k TxKind) String() string {
	switch k {
	case TxAccount:
		return "account"
	case TxUtxo:
		return "utxo"
	case TxContract:
		return "contract"
	default:
		return "unknown"
	}
}

// TxInput references a previous transaction output being spent.
type TxInput struct {
	PrevTxID Hash
	Index    uint32
}

// TxOutput is a UTXO-kind output.
type TxOutput struct {
	Address Address
	Amount  uint64
}

// Transaction is the immutable unit of ledger mutation. See codec.go for the
// exact canonical-bytes layout used for hashing and signing.
type Transaction struct {
	Version     uint32
	Kind        TxKind
	NetworkID   uint32
	Nonce       uint64
	TimestampMs uint64
	ValidUntil  uint64
	From        *Address // nil for coinbase/reward transactions
	To          *Address
	Amount      uint64
	Fee         uint64
	Data        []byte
	Inputs      []TxInput
	Outputs     []TxOutput
	PubKey      []byte // 33-byte compressed secp256k1 public key
	Signature   []byte // 64-byte raw R||S, low-S normalized
}

// CapabilityType enumerates the kinds of hardware access a contract may be
// authorized to perform.
type CapabilityType uint8

const (
	CapReadSensor CapabilityType = iota + 1
	CapWriteActuator
)

// Capability grants an address the right to read a sensor or write an
// actuator identified by DeviceID.
type Capability struct {
	Type     CapabilityType
	DeviceID uint64
}

func (c Capability) less(o Capability) bool {
	if c.Type != o.Type {
		return c.Type < o.Type
	}
	return c.DeviceID < o.DeviceID
}

// ContractStorage is a contract's persistent key/value slots.
type ContractStorage map[uint64]uint64

// Account is the ledger's per-address state: balance, nonce, contract
// storage, and any hardware capabilities granted to this address.
type Account struct {
	Balance      uint64
	Nonce        uint64
	Storage      ContractStorage
	Capabilities []Capability
}

// UTXOKey identifies a single unspent output.
type UTXOKey struct {
	TxID  Hash
	Index uint32
}

// Block is a signed, linked unit of the replicated ledger.
type Block struct {
	Index              uint64
	TimestampMs        uint64
	PrevHash           Hash
	Nonce              uint64
	Difficulty         uint32
	StateRoot          Hash
	Transactions       []Transaction
	ValidatorID        string
	ValidatorSignature []byte // 64-byte raw R||S
	Hash               Hash
}

// DeferredAction is a queued actuator write awaiting confirmation depth.
type DeferredAction struct {
	BlockHash  Hash
	DeviceID   uint64
	Value      uint64
	EnqueuedMs uint64
}

// Validator describes one member of the fixed PoA validator set.
type Validator struct {
	ID     string
	PubKey []byte // 33-byte compressed secp256k1 public key
}
