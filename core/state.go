package core

// state.go implements the account/UTXO/contract storage layer: a single
// in-memory State guarded by one mutex, exposing the primitive mutators the
// chain manager and VM use to apply transactions, plus StateRoot() for
// consensus-critical hashing.
//
// Accounts are created lazily on first credit/debit/nonce/storage touch;
// balances never go negative and nonces are monotonically non-decreasing.

import "sync"

// State holds the full replicated account/UTXO/contract view.
type State struct {
	mu       sync.RWMutex
	accounts map[Address]*Account
	utxos    map[UTXOKey]TxOutput
}

// NewState returns an empty state, as used at genesis.
func NewState() *State {
	return &State{
		accounts: make(map[Address]*Account),
		utxos:    make(map[UTXOKey]TxOutput),
	}
}

func (s *State) account(addr Address) *Account {
	acc, ok := s.accounts[addr]
	if !ok {
		acc = &Account{Storage: make(ContractStorage)}
		s.accounts[addr] = acc
	}
	return acc
}

// Credit increases addr's balance by amount, creating the account if absent.
func (s *State) Credit(addr Address, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account(addr).Balance += amount
}

// Debit decreases addr's balance by amount. Returns ErrInsufficientFunds if
// the account does not hold enough, leaving state unchanged.
func (s *State) Debit(addr Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[addr]
	if !ok {
		if amount > 0 {
			return ErrInsufficientFunds
		}
		return nil
	}
	if acc.Balance < amount {
		return ErrInsufficientFunds
	}
	acc.Balance -= amount
	return nil
}

// Balance returns addr's current balance (0 for an unknown address).
func (s *State) Balance(addr Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.accounts[addr]; ok {
		return acc.Balance
	}
	return 0
}

// Nonce returns addr's current nonce (0 for an unknown address).
func (s *State) Nonce(addr Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.accounts[addr]; ok {
		return acc.Nonce
	}
	return 0
}

// IncrementNonce bumps addr's nonce by one, creating the account if absent.
func (s *State) IncrementNonce(addr Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account(addr).Nonce++
}

// SetNonce forces addr's nonce, used only by replay/recovery paths.
func (s *State) SetNonce(addr Address, n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account(addr).Nonce = n
}

// StorageGet returns a contract's stored value for key, defaulting to 0.
func (s *State) StorageGet(addr Address, key uint64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, ok := s.accounts[addr]; ok {
		return acc.Storage[key]
	}
	return 0
}

// StoragePut writes a contract storage slot, creating the account if absent.
func (s *State) StoragePut(addr Address, key, value uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account(addr).Storage[key] = value
}

// Capabilities returns a copy of addr's granted hardware capabilities.
func (s *State) Capabilities(addr Address) []Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[addr]
	if !ok {
		return nil
	}
	out := make([]Capability, len(acc.Capabilities))
	copy(out, acc.Capabilities)
	return out
}

// HasCapability reports whether addr already holds the given capability.
func (s *State) HasCapability(addr Address, c Capability) bool {
	for _, have := range s.Capabilities(addr) {
		if have == c {
			return true
		}
	}
	return false
}

// GrantCapability adds a hardware capability to addr if not already present.
func (s *State) GrantCapability(addr Address, c Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.account(addr)
	for _, have := range acc.Capabilities {
		if have == c {
			return
		}
	}
	acc.Capabilities = append(acc.Capabilities, c)
}

// HasUTXO reports whether an output is present and unspent.
func (s *State) HasUTXO(key UTXOKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.utxos[key]
	return ok
}

// GetUTXO returns an unspent output.
func (s *State) GetUTXO(key UTXOKey) (TxOutput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.utxos[key]
	return out, ok
}

// AddUTXO records a new unspent output.
func (s *State) AddUTXO(key UTXOKey, out TxOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utxos[key] = out
}

// SpendUTXO removes and returns an unspent output, or ErrUTXONotFound.
func (s *State) SpendUTXO(key UTXOKey) (TxOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.utxos[key]
	if !ok {
		return TxOutput{}, ErrUTXONotFound
	}
	delete(s.utxos, key)
	return out, nil
}

// StateRoot computes the canonical hash of the full account map.
func (s *State) StateRoot() Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return EncodeStateRoot(s.accounts)
}

// Clone deep-copies the state, used to project a speculative block's effects
// during create_block without mutating the authoritative state, and to
// snapshot-roll-back a failed apply_block.
func (s *State) Clone() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewState()
	for addr, acc := range s.accounts {
		storage := make(ContractStorage, len(acc.Storage))
		for k, v := range acc.Storage {
			storage[k] = v
		}
		caps := append([]Capability(nil), acc.Capabilities...)
		out.accounts[addr] = &Account{
			Balance:      acc.Balance,
			Nonce:        acc.Nonce,
			Storage:      storage,
			Capabilities: caps,
		}
	}
	for k, v := range s.utxos {
		out.utxos[k] = v
	}
	return out
}
