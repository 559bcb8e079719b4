package core

// storage.go is the encrypted key/value persistence adapter the chain
// manager uses for blocks, the UTXO set, account state, snapshots, and
// metadata. It wraps a goleveldb database; every value is encrypted with
// nacl/secretbox before it touches disk, using a random per-record nonce so
// two writes of the same plaintext never produce the same ciphertext.
// Every Get is treated as potentially missing — callers must check ok.

import (
	"crypto/rand"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keyChainTip = "chain:tip"
)

// Storage persists the chain manager's durable state under the keys
// block:<hex>, height:<n>, chain:tip, snapshot:<height> and meta:<name>.
// A snapshot record holds the account state and the UTXO set together; no
// separate utxo:set or state:account records are written.
type Storage struct {
	db     *leveldb.DB
	key    [32]byte
	logger *logrus.Logger
}

// OpenStorage opens (creating if absent) a goleveldb database at dir,
// encrypting every value with the given 32-byte symmetric key.
func OpenStorage(dir string, key []byte, logger *logrus.Logger) (*Storage, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("storage: key must be 32 bytes, got %d", len(key))
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dir, err)
	}
	s := &Storage{db: db, logger: logger}
	copy(s.key[:], key)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) seal(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrIoFailure, err)
	}
	out := make([]byte, 24, 24+len(plaintext)+secretbox.Overhead)
	copy(out, nonce[:])
	out = secretbox.Seal(out, plaintext, &nonce, &s.key)
	return out, nil
}

func (s *Storage) unseal(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrIoFailure)
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	plain, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("%w: decryption failed", ErrIoFailure)
	}
	return plain, nil
}

// put encrypts value and writes it under key.
func (s *Storage) put(key string, value []byte) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	if err := s.db.Put([]byte(key), sealed, nil); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrIoFailure, key, err)
	}
	return nil
}

// get reads and decrypts the value stored at key. ok is false (with a nil
// error) when the key is simply absent; err is non-nil only for genuine IO
// or decryption failures.
func (s *Storage) get(key string) (value []byte, ok bool, err error) {
	sealed, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrIoFailure, key, err)
	}
	plain, err := s.unseal(sealed)
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

func (s *Storage) delete(key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrIoFailure, key, err)
	}
	return nil
}

func blockKey(hash Hash) string   { return "block:" + hash.Hex() }
func heightKey(h uint64) string   { return fmt.Sprintf("height:%d", h) }
func snapshotKey(h uint64) string { return fmt.Sprintf("snapshot:%d", h) }
func metaKey(name string) string { return "meta:" + name }

// PutBlock persists a block and its height index.
func (s *Storage) PutBlock(b *Block) error {
	if err := s.put(blockKey(b.Hash), EncodeBlockStorage(b)); err != nil {
		return err
	}
	return s.put(heightKey(b.Index), b.Hash[:])
}

// GetBlockByHash loads and decodes a persisted block by hash.
func (s *Storage) GetBlockByHash(hash Hash) (*Block, bool, error) {
	raw, ok, err := s.get(blockKey(hash))
	if err != nil || !ok {
		return nil, ok, err
	}
	b, err := decodeBlockStorage(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: corrupt block %s: %v", ErrIoFailure, hash, err)
	}
	b.Hash = hash
	return b, true, nil
}

// GetBlockHashByHeight resolves the block hash stored at a given height.
func (s *Storage) GetBlockHashByHeight(height uint64) (Hash, bool, error) {
	raw, ok, err := s.get(heightKey(height))
	if err != nil || !ok {
		return Hash{}, ok, err
	}
	var h Hash
	copy(h[:], raw)
	return h, true, nil
}

// SetTip records the current chain tip hash.
func (s *Storage) SetTip(hash Hash) error { return s.put(keyChainTip, hash[:]) }

// Tip returns the current chain tip hash, if any has been recorded.
func (s *Storage) Tip() (Hash, bool, error) {
	raw, ok, err := s.get(keyChainTip)
	if err != nil || !ok {
		return Hash{}, ok, err
	}
	var h Hash
	copy(h[:], raw)
	return h, true, nil
}

// PutMeta stores an opaque named metadata value (e.g. current difficulty).
func (s *Storage) PutMeta(name string, value []byte) error {
	return s.put(metaKey(name), value)
}

// GetMeta retrieves a named metadata value.
func (s *Storage) GetMeta(name string) ([]byte, bool, error) {
	return s.get(metaKey(name))
}

// PutSnapshot persists a full state+UTXO snapshot at height.
func (s *Storage) PutSnapshot(height uint64, st *State) error {
	blob := encodeSnapshot(st)
	return s.put(snapshotKey(height), blob)
}

// GetSnapshot loads a previously persisted snapshot, reconstructing a State.
func (s *Storage) GetSnapshot(height uint64) (*State, bool, error) {
	raw, ok, err := s.get(snapshotKey(height))
	if err != nil || !ok {
		return nil, ok, err
	}
	st, err := decodeSnapshot(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: corrupt snapshot at %d: %v", ErrIoFailure, height, err)
	}
	return st, true, nil
}

// DeleteBlock removes a persisted block, used by the pruning hook after a
// snapshot covering its height has been written.
func (s *Storage) DeleteBlock(hash Hash) error { return s.delete(blockKey(hash)) }

// DeleteSnapshot removes a persisted snapshot, used by the pruning hook to
// reclaim non-archival snapshots once a newer height's snapshot supersedes
// them for recovery purposes.
func (s *Storage) DeleteSnapshot(height uint64) error { return s.delete(snapshotKey(height)) }
