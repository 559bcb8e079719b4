package core

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyAndDeriveAddress(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)
	require.NotNil(t, priv)

	addr := DeriveAddress(priv.PubKey().SerializeCompressed())
	require.False(t, addr.IsZero())

	parsed, err := ParseAddress(addr.Hex())
	require.NoError(t, err)
	require.Equal(t, addr, parsed)
}

func TestKeyFromBytesRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	raw := priv.Serialize()
	loaded, err := KeyFromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, priv.PubKey().SerializeCompressed(), loaded.PubKey().SerializeCompressed())
}

func TestKeyFromBytesRejectsWrongLength(t *testing.T) {
	_, err := KeyFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestMnemonicRoundTrip(t *testing.T) {
	mnemonic, err := NewMnemonic(128)
	require.NoError(t, err)

	k1, err := KeyFromMnemonic(mnemonic, "")
	require.NoError(t, err)
	k2, err := KeyFromMnemonic(mnemonic, "")
	require.NoError(t, err)
	require.Equal(t, k1.Serialize(), k2.Serialize(), "mnemonic derivation must be deterministic")

	_, err = KeyFromMnemonic("not a valid mnemonic at all", "")
	require.Error(t, err)
}

func TestSignAndVerifyTransaction(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	to := Address{9}
	tx := Transaction{
		Version:     1,
		Kind:        TxAccount,
		NetworkID:   1,
		Nonce:       1,
		TimestampMs: 1000,
		ValidUntil:  5000,
		To:          &to,
		Amount:      10,
		Fee:         1,
	}
	require.NoError(t, SignTransaction(priv, &tx))
	require.True(t, VerifyTransactionSignature(&tx))

	tx.Amount = 999
	require.False(t, VerifyTransactionSignature(&tx), "mutating a signed field must invalidate the signature")
}

func TestVerifyTransactionSignatureRejectsMismatchedSender(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	tx := Transaction{Version: 1, NetworkID: 1}
	require.NoError(t, SignTransaction(priv, &tx))

	otherAddr := DeriveAddress(other.PubKey().SerializeCompressed())
	tx.From = &otherAddr
	require.False(t, VerifyTransactionSignature(&tx))
}

func TestSignAndVerifyBlock(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	b := sampleBlock()
	sig, err := SignBlock(priv, b)
	require.NoError(t, err)
	b.ValidatorSignature = sig

	pub := priv.PubKey().SerializeCompressed()
	require.True(t, VerifyBlockSignature(pub, b))

	b.Nonce++
	require.False(t, VerifyBlockSignature(pub, b), "mutating the block must invalidate its signature")
}

func TestVerifySignatureRejectsHighS(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)
	hash := Hash{1, 2, 3}
	sig, err := rawSign(priv, hash)
	require.NoError(t, err)

	pub := priv.PubKey().SerializeCompressed()
	require.True(t, VerifySignature(pub, hash, sig))

	// Negating S gives the high-S form of the same, otherwise valid signature.
	var s secp256k1.ModNScalar
	s.SetByteSlice(sig[32:])
	s.Negate()
	sBytes := s.Bytes()
	highS := append(append([]byte(nil), sig[:32]...), sBytes[:]...)
	require.False(t, VerifySignature(pub, hash, highS))

	require.False(t, VerifySignature(pub, hash, sig[:63]))
	require.False(t, VerifySignature(pub[:10], hash, sig))
}
