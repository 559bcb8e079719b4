package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	s, err := OpenStorage(t.TempDir(), key, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenStorageRejectsWrongKeyLength(t *testing.T) {
	_, err := OpenStorage(t.TempDir(), []byte{1, 2, 3}, nil)
	require.Error(t, err)
}

func TestStoragePutGetBlock(t *testing.T) {
	s := openTestStorage(t)
	b := sampleBlock()
	b.Hash = BlockHash(b)

	require.NoError(t, s.PutBlock(b))

	got, ok, err := s.GetBlockByHash(b.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b.Index, got.Index)
	require.Equal(t, b.Hash, got.Hash)

	h, ok, err := s.GetBlockHashByHeight(b.Index)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b.Hash, h)
}

func TestStorageGetMissingKeyReturnsFalseNoError(t *testing.T) {
	s := openTestStorage(t)
	_, ok, err := s.GetBlockByHash(Hash{0xff})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorageTip(t *testing.T) {
	s := openTestStorage(t)
	_, ok, err := s.Tip()
	require.NoError(t, err)
	require.False(t, ok)

	h := Hash{1, 2, 3}
	require.NoError(t, s.SetTip(h))
	got, ok, err := s.Tip()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, h, got)
}

func TestStorageMeta(t *testing.T) {
	s := openTestStorage(t)
	require.NoError(t, s.PutMeta("difficulty", []byte{1}))
	v, ok, err := s.GetMeta("difficulty")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{1}, v)
}

func TestStorageSnapshotRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	st := NewState()
	st.Credit(Address{1}, 500)

	require.NoError(t, s.PutSnapshot(10, st))
	loaded, ok, err := s.GetSnapshot(10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(500), loaded.Balance(Address{1}))

	_, ok, err = s.GetSnapshot(999)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorageDeleteBlock(t *testing.T) {
	s := openTestStorage(t)
	b := sampleBlock()
	b.Hash = BlockHash(b)
	require.NoError(t, s.PutBlock(b))
	require.NoError(t, s.DeleteBlock(b.Hash))

	_, ok, err := s.GetBlockByHash(b.Hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorageEncryptedAtRest(t *testing.T) {
	// Two writes of the same plaintext with random nonces must not produce
	// identical ciphertexts; exercised indirectly via seal/unseal.
	s := openTestStorage(t)
	a, err := s.seal([]byte("same-plaintext"))
	require.NoError(t, err)
	b, err := s.seal([]byte("same-plaintext"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	plain, err := s.unseal(a)
	require.NoError(t, err)
	require.Equal(t, []byte("same-plaintext"), plain)
}
