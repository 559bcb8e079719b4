package core

// Key material and signing for hb-core.
//
// Accounts and validators both use secp256k1 key pairs; addresses are
// derived from the compressed public key (see DeriveAddress). Signatures
// are raw 64-byte R||S with low-S normalization enforced on both sides —
// Sign always produces a canonical low-S signature and Verify rejects any
// signature that is not already in canonical form.
//
// Import hygiene: this file depends only on common_structs.go and codec.go
// to stay at the lowest dependency tier, matching the rest of core.

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	bip39 "github.com/tyler-smith/go-bip39"
)

// GenerateKey creates a new random secp256k1 key pair, suitable for a node's
// validator identity or a fresh account.
func GenerateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// KeyFromBytes parses a 32-byte scalar as a secp256k1 private key, as used
// when loading a key from configuration or a CLI flag.
func KeyFromBytes(b []byte) (*btcec.PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("wallet: private key must be exactly 32 bytes, got %d", len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

// KeyFromMnemonic derives a deterministic secp256k1 key from a BIP-39
// mnemonic, as an operator convenience for bootstrapping a node's
// node_secret_key without handling raw key bytes directly. The derivation
// is a simple "hash the seed into a scalar" scheme — hb-core has no
// hierarchical-derivation requirement, unlike the multi-account HD wallets
// this pattern is usually paired with.
func KeyFromMnemonic(mnemonic, passphrase string) (*btcec.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("wallet: invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	digest := sha256.Sum256(seed)
	priv, _ := btcec.PrivKeyFromBytes(digest[:])
	return priv, nil
}

// NewMnemonic generates a fresh BIP-39 mnemonic of the given entropy size
// (128 or 256 bits).
func NewMnemonic(entropyBits int) (string, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("wallet: entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// DeriveAddress computes "hb" || hex(SHA256(pubkey)[0:20]) from a compressed
// public key.
func DeriveAddress(pubKeyCompressed []byte) Address {
	sum := sha256.Sum256(pubKeyCompressed)
	var a Address
	copy(a[:], sum[:20])
	return a
}

// rawSign produces a 64-byte R||S signature over hash, with S normalized to
// the lower half of the curve order.
func rawSign(priv *btcec.PrivateKey, hash Hash) ([]byte, error) {
	sig := ecdsa.Sign(priv, hash[:])
	r := sig.R()
	s := sig.S()
	if s.IsOverHalfOrder() {
		s.Negate()
	}
	rb := r.Bytes()
	sb := s.Bytes()
	out := make([]byte, 64)
	copy(out[0:32], rb[:])
	copy(out[32:64], sb[:])
	return out, nil
}

// VerifySignature checks a raw 64-byte R||S signature against a compressed
// public key and message hash. Non-canonical (high-S) signatures are
// rejected rather than silently renormalized.
func VerifySignature(pubKeyCompressed []byte, hash Hash, sig []byte) bool {
	if len(sig) != 64 || len(pubKeyCompressed) != 33 {
		return false
	}
	pub, err := btcec.ParsePubKey(pubKeyCompressed)
	if err != nil {
		return false
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(sig[32:64]); overflow {
		return false
	}
	if s.IsOverHalfOrder() {
		return false
	}

	parsed := ecdsa.NewSignature(&r, &s)
	return parsed.Verify(hash[:], pub)
}

// SignTransaction sets tx.PubKey, tx.From and tx.Signature from priv. Callers
// must have already populated every other field.
func SignTransaction(priv *btcec.PrivateKey, tx *Transaction) error {
	if tx == nil {
		return errors.New("wallet: nil transaction")
	}
	pub := priv.PubKey().SerializeCompressed()
	addr := DeriveAddress(pub)
	tx.PubKey = pub
	tx.From = &addr

	sig, err := rawSign(priv, TxSigningHash(tx))
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// VerifyTransactionSignature verifies a signed (non-coinbase) transaction:
// the sender address must match the attached public key, and the signature
// must verify over the transaction's signing hash.
func VerifyTransactionSignature(tx *Transaction) bool {
	if tx.From == nil {
		return false
	}
	if len(tx.PubKey) != 33 {
		return false
	}
	if DeriveAddress(tx.PubKey) != *tx.From {
		return false
	}
	return VerifySignature(tx.PubKey, TxSigningHash(tx), tx.Signature)
}

// SignBlock signs a block's canonical payload with a validator's key.
func SignBlock(priv *btcec.PrivateKey, b *Block) ([]byte, error) {
	return rawSign(priv, BlockSigningHash(b))
}

// VerifyBlockSignature verifies a block's validator signature against a
// known validator public key.
func VerifyBlockSignature(pubKeyCompressed []byte, b *Block) bool {
	return VerifySignature(pubKeyCompressed, BlockSigningHash(b), b.ValidatorSignature)
}
