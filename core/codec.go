package core

// codec.go is the single canonical-serialization module referenced
// throughout the rest of core. Every participant must produce byte-identical
// output for the same logical value, so the encoder never uses map
// iteration order, JSON, or gob: fixed-width big-endian integers and
// length-prefixed byte strings only, with maps always walked in sorted-key
// order.

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) u8(v uint8) { e.buf.WriteByte(v) }

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

// fixed writes raw bytes with no length prefix; callers must only use it for
// fields whose length is part of the type (Address, Hash, pubkeys, sigs).
func (e *encoder) fixed(b []byte) { e.buf.Write(b) }

// bytesField writes a u32 length prefix followed by the bytes.
func (e *encoder) bytesField(b []byte) {
	e.u32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

// encodeTxBody writes the fields shared by transaction hashing/signing and
// by the full in-block encoding, up to (but excluding) pubkey/signature.
func encodeTxBody(e *encoder, tx *Transaction) {
	e.u32(tx.Version)
	e.u8(uint8(tx.Kind))
	e.u32(tx.NetworkID)
	e.u64(tx.Nonce)
	e.u64(tx.TimestampMs)
	e.u64(tx.ValidUntil)

	e.bool(tx.From != nil)
	if tx.From != nil {
		e.fixed(tx.From[:])
	}
	e.bool(tx.To != nil)
	if tx.To != nil {
		e.fixed(tx.To[:])
	}

	e.u64(tx.Amount)
	e.u64(tx.Fee)
	e.bytesField(tx.Data)

	e.u32(uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		e.fixed(in.PrevTxID[:])
		e.u32(in.Index)
	}

	e.u32(uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		e.fixed(out.Address[:])
		e.u64(out.Amount)
	}
}

// EncodeTransactionCanonical returns the canonical byte layout used both for
// txid (SHA256 of these bytes) and for the signed payload
// (SHA256("TX\0" || these bytes)). Signature and pubkey are never included.
func EncodeTransactionCanonical(tx *Transaction) []byte {
	e := newEncoder()
	encodeTxBody(e, tx)
	return e.bytes()
}

// EncodeTransactionFull encodes a transaction including its pubkey and
// signature, for embedding inside a block's canonical bytes.
func EncodeTransactionFull(tx *Transaction) []byte {
	e := newEncoder()
	encodeTxBody(e, tx)
	e.bytesField(tx.PubKey)
	e.bytesField(tx.Signature)
	return e.bytes()
}

// TxID computes SHA256(EncodeTransactionCanonical(tx)).
func TxID(tx *Transaction) Hash {
	return sha256.Sum256(EncodeTransactionCanonical(tx))
}

// TxSigningHash computes SHA256("TX\0" || canonical_bytes), the payload
// actually signed by the sender's private key.
func TxSigningHash(tx *Transaction) Hash {
	payload := append([]byte("TX\x00"), EncodeTransactionCanonical(tx)...)
	return sha256.Sum256(payload)
}

// EncodeBlockCanonical returns the canonical byte layout used for block
// hashing and validator signing. Hash, ValidatorID and ValidatorSignature
// are never included.
func EncodeBlockCanonical(b *Block) []byte {
	e := newEncoder()
	e.u64(b.Index)
	e.u64(b.TimestampMs)
	e.fixed(b.PrevHash[:])
	e.u64(b.Nonce)
	e.u32(b.Difficulty)
	e.fixed(b.StateRoot[:])
	e.u32(uint32(len(b.Transactions)))
	for i := range b.Transactions {
		e.bytesField(EncodeTransactionFull(&b.Transactions[i]))
	}
	return e.bytes()
}

// BlockHash computes SHA256(EncodeBlockCanonical(b)).
func BlockHash(b *Block) Hash {
	return sha256.Sum256(EncodeBlockCanonical(b))
}

// BlockSigningHash computes SHA256("BLOCK\0" || canonical_bytes), the
// payload signed by the authoring validator.
func BlockSigningHash(b *Block) Hash {
	payload := append([]byte("BLOCK\x00"), EncodeBlockCanonical(b)...)
	return sha256.Sum256(payload)
}

// EncodeStateRoot produces the canonical byte layout of the account map
// used to compute the state root: addresses sorted ascending, storage keys
// sorted ascending, capabilities sorted by (type, device id).
func EncodeStateRoot(accounts map[Address]*Account) Hash {
	addrs := make([]Address, 0, len(accounts))
	for a := range accounts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})

	e := newEncoder()
	e.u32(uint32(len(addrs)))
	for _, addr := range addrs {
		acc := accounts[addr]
		e.fixed(addr[:])
		e.u64(acc.Balance)
		e.u64(acc.Nonce)

		keys := make([]uint64, 0, len(acc.Storage))
		for k := range acc.Storage {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		e.u32(uint32(len(keys)))
		for _, k := range keys {
			e.u64(k)
			e.u64(acc.Storage[k])
		}

		caps := append([]Capability(nil), acc.Capabilities...)
		sort.Slice(caps, func(i, j int) bool { return caps[i].less(caps[j]) })
		e.u32(uint32(len(caps)))
		for _, c := range caps {
			e.u8(uint8(c.Type))
			e.u64(c.DeviceID)
		}
	}
	return sha256.Sum256(e.bytes())
}

// decoder reads the fixed-width/length-prefixed layout encoder produces. It
// serves the storage adapter's persistence format and the full transaction
// and block encodings received over the wire; it never feeds a hash or
// signature directly, where EncodeBlockCanonical /
// EncodeTransactionCanonical are authoritative.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(b []byte) *decoder { return &decoder{buf: b} }

func (d *decoder) u8() (uint8, error) {
	if d.pos+1 > len(d.buf) {
		return 0, fmt.Errorf("codec: truncated u8")
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, fmt.Errorf("codec: truncated u32")
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, fmt.Errorf("codec: truncated u64")
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

func (d *decoder) fixed(n int) ([]byte, error) {
	if d.pos+n > len(d.buf) {
		return nil, fmt.Errorf("codec: truncated fixed(%d)", n)
	}
	out := append([]byte(nil), d.buf[d.pos:d.pos+n]...)
	d.pos += n
	return out, nil
}

func (d *decoder) bytesField() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	return d.fixed(int(n))
}

func (d *decoder) bool() (bool, error) {
	v, err := d.u8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func decodeTxBody(d *decoder, tx *Transaction) error {
	var err error
	if tx.Version, err = d.u32(); err != nil {
		return err
	}
	kind, err := d.u8()
	if err != nil {
		return err
	}
	tx.Kind = TxKind(kind)
	if tx.NetworkID, err = d.u32(); err != nil {
		return err
	}
	if tx.Nonce, err = d.u64(); err != nil {
		return err
	}
	if tx.TimestampMs, err = d.u64(); err != nil {
		return err
	}
	if tx.ValidUntil, err = d.u64(); err != nil {
		return err
	}

	hasFrom, err := d.bool()
	if err != nil {
		return err
	}
	if hasFrom {
		raw, err := d.fixed(20)
		if err != nil {
			return err
		}
		var a Address
		copy(a[:], raw)
		tx.From = &a
	}
	hasTo, err := d.bool()
	if err != nil {
		return err
	}
	if hasTo {
		raw, err := d.fixed(20)
		if err != nil {
			return err
		}
		var a Address
		copy(a[:], raw)
		tx.To = &a
	}

	if tx.Amount, err = d.u64(); err != nil {
		return err
	}
	if tx.Fee, err = d.u64(); err != nil {
		return err
	}
	if tx.Data, err = d.bytesField(); err != nil {
		return err
	}

	nIn, err := d.u32()
	if err != nil {
		return err
	}
	tx.Inputs = make([]TxInput, nIn)
	for i := range tx.Inputs {
		raw, err := d.fixed(32)
		if err != nil {
			return err
		}
		copy(tx.Inputs[i].PrevTxID[:], raw)
		if tx.Inputs[i].Index, err = d.u32(); err != nil {
			return err
		}
	}

	nOut, err := d.u32()
	if err != nil {
		return err
	}
	tx.Outputs = make([]TxOutput, nOut)
	for i := range tx.Outputs {
		raw, err := d.fixed(20)
		if err != nil {
			return err
		}
		copy(tx.Outputs[i].Address[:], raw)
		if tx.Outputs[i].Amount, err = d.u64(); err != nil {
			return err
		}
	}
	return nil
}

// DecodeTransactionFull parses a transaction encoded by
// EncodeTransactionFull.
func DecodeTransactionFull(raw []byte) (Transaction, error) {
	var tx Transaction
	d := newDecoder(raw)
	if err := decodeTxBody(d, &tx); err != nil {
		return tx, err
	}
	var err error
	if tx.PubKey, err = d.bytesField(); err != nil {
		return tx, err
	}
	if tx.Signature, err = d.bytesField(); err != nil {
		return tx, err
	}
	return tx, nil
}

// EncodeBlockStorage serializes a block in full, including the fields the
// consensus-critical canonical encoding deliberately omits (hash, validator
// id, validator signature). This is the storage adapter's on-disk format —
// never used for hashing or signing.
func EncodeBlockStorage(b *Block) []byte {
	e := newEncoder()
	e.u64(b.Index)
	e.u64(b.TimestampMs)
	e.fixed(b.PrevHash[:])
	e.u64(b.Nonce)
	e.u32(b.Difficulty)
	e.fixed(b.StateRoot[:])
	e.u32(uint32(len(b.Transactions)))
	for i := range b.Transactions {
		e.bytesField(EncodeTransactionFull(&b.Transactions[i]))
	}
	e.bytesField([]byte(b.ValidatorID))
	e.bytesField(b.ValidatorSignature)
	e.fixed(b.Hash[:])
	return e.bytes()
}

// DecodeBlockStorage parses a block encoded by EncodeBlockStorage; it is
// also the wire format p2p block gossip decodes on receipt.
func DecodeBlockStorage(raw []byte) (*Block, error) {
	return decodeBlockStorage(raw)
}

// decodeBlockStorage parses a block encoded by EncodeBlockStorage.
func decodeBlockStorage(raw []byte) (*Block, error) {
	d := newDecoder(raw)
	b := &Block{}
	var err error
	if b.Index, err = d.u64(); err != nil {
		return nil, err
	}
	if b.TimestampMs, err = d.u64(); err != nil {
		return nil, err
	}
	prevHash, err := d.fixed(32)
	if err != nil {
		return nil, err
	}
	copy(b.PrevHash[:], prevHash)
	if b.Nonce, err = d.u64(); err != nil {
		return nil, err
	}
	if b.Difficulty, err = d.u32(); err != nil {
		return nil, err
	}
	stateRoot, err := d.fixed(32)
	if err != nil {
		return nil, err
	}
	copy(b.StateRoot[:], stateRoot)

	nTx, err := d.u32()
	if err != nil {
		return nil, err
	}
	b.Transactions = make([]Transaction, nTx)
	for i := range b.Transactions {
		raw, err := d.bytesField()
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTransactionFull(raw)
		if err != nil {
			return nil, err
		}
		b.Transactions[i] = tx
	}

	validatorID, err := d.bytesField()
	if err != nil {
		return nil, err
	}
	b.ValidatorID = string(validatorID)
	if b.ValidatorSignature, err = d.bytesField(); err != nil {
		return nil, err
	}
	hash, err := d.fixed(32)
	if err != nil {
		return nil, err
	}
	copy(b.Hash[:], hash)
	return b, nil
}

// encodeSnapshot serializes a full account/UTXO view for snapshot
// persistence. Unlike EncodeStateRoot this need not be canonical — it is
// read back only by this same adapter — but it reuses the encoder for
// consistency with the rest of the codebase.
func encodeSnapshot(st *State) []byte {
	st.mu.RLock()
	defer st.mu.RUnlock()

	e := newEncoder()
	e.u32(uint32(len(st.accounts)))
	for addr, acc := range st.accounts {
		e.fixed(addr[:])
		e.u64(acc.Balance)
		e.u64(acc.Nonce)
		e.u32(uint32(len(acc.Storage)))
		for k, v := range acc.Storage {
			e.u64(k)
			e.u64(v)
		}
		e.u32(uint32(len(acc.Capabilities)))
		for _, c := range acc.Capabilities {
			e.u8(uint8(c.Type))
			e.u64(c.DeviceID)
		}
	}

	e.u32(uint32(len(st.utxos)))
	for k, v := range st.utxos {
		e.fixed(k.TxID[:])
		e.u32(k.Index)
		e.fixed(v.Address[:])
		e.u64(v.Amount)
	}
	return e.bytes()
}

// decodeSnapshot parses a snapshot produced by encodeSnapshot.
func decodeSnapshot(raw []byte) (*State, error) {
	d := newDecoder(raw)
	st := NewState()

	nAcc, err := d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nAcc; i++ {
		rawAddr, err := d.fixed(20)
		if err != nil {
			return nil, err
		}
		var addr Address
		copy(addr[:], rawAddr)
		acc := &Account{Storage: make(ContractStorage)}
		if acc.Balance, err = d.u64(); err != nil {
			return nil, err
		}
		if acc.Nonce, err = d.u64(); err != nil {
			return nil, err
		}
		nStorage, err := d.u32()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < nStorage; j++ {
			k, err := d.u64()
			if err != nil {
				return nil, err
			}
			v, err := d.u64()
			if err != nil {
				return nil, err
			}
			acc.Storage[k] = v
		}
		nCaps, err := d.u32()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < nCaps; j++ {
			typ, err := d.u8()
			if err != nil {
				return nil, err
			}
			devID, err := d.u64()
			if err != nil {
				return nil, err
			}
			acc.Capabilities = append(acc.Capabilities, Capability{Type: CapabilityType(typ), DeviceID: devID})
		}
		st.accounts[addr] = acc
	}

	nUtxo, err := d.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nUtxo; i++ {
		rawTxID, err := d.fixed(32)
		if err != nil {
			return nil, err
		}
		var key UTXOKey
		copy(key.TxID[:], rawTxID)
		if key.Index, err = d.u32(); err != nil {
			return nil, err
		}
		rawAddr, err := d.fixed(20)
		if err != nil {
			return nil, err
		}
		var out TxOutput
		copy(out.Address[:], rawAddr)
		if out.Amount, err = d.u64(); err != nil {
			return nil, err
		}
		st.utxos[key] = out
	}
	return st, nil
}
