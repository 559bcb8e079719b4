package core

// mempool.go implements the fee-per-byte transaction pool: single-mutex
// admission, replace-by-fee for Account-kind transactions sharing a
// (from, nonce) pair, and capacity eviction of the lowest-priority entry.
// The pool is process-local and is never persisted.

import (
	"container/heap"
	"sync"
	"time"
)

type mempoolEntry struct {
	tx       Transaction
	txid     Hash
	size     int
	priority float64 // fee / canonical byte length
	index    int     // heap index, maintained by container/heap
}

// entryHeap is a min-heap ordered by ascending priority, so the lowest
// fee-per-byte entry is always at the root for O(log n) eviction.
type entryHeap []*mempoolEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].priority < h[j].priority }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) {
	e := x.(*mempoolEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Mempool is the admission pool of pending transactions.
type Mempool struct {
	mu       sync.Mutex
	byID     map[Hash]*mempoolEntry
	byNonce  map[Address]map[uint64]Hash // Account-kind (from, nonce) -> txid, for replace-by-fee
	pq       entryHeap
	limit    int
}

// NewMempool creates an empty pool bounded at limit entries.
func NewMempool(limit int) *Mempool {
	return &Mempool{
		byID:    make(map[Hash]*mempoolEntry),
		byNonce: make(map[Address]map[uint64]Hash),
		limit:   limit,
	}
}

// Add admits tx into the pool, applying duplicate rejection, replace-by-fee,
// and capacity eviction per the admission rules.
func (m *Mempool) Add(tx Transaction, nowMs uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.TimestampMs > nowMs {
		if tx.TimestampMs-nowMs > uint64(24*time.Hour/time.Millisecond) {
			return ErrStaleTimestamp
		}
	} else if nowMs-tx.TimestampMs > uint64(24*time.Hour/time.Millisecond) {
		return ErrStaleTimestamp
	}

	id := TxID(&tx)
	if _, exists := m.byID[id]; exists {
		return ErrDuplicateTx
	}

	size := len(EncodeTransactionFull(&tx))
	priority := float64(tx.Fee) / float64(size)

	if tx.Kind == TxAccount && tx.From != nil {
		if nonces, ok := m.byNonce[*tx.From]; ok {
			if oldID, ok := nonces[tx.Nonce]; ok {
				old := m.byID[oldID]
				if tx.Fee <= old.tx.Fee {
					return ErrLowerFee
				}
				m.removeLocked(oldID)
			}
		}
	}

	if m.limit > 0 && len(m.byID) >= m.limit {
		if len(m.pq) == 0 || priority <= m.pq[0].priority {
			return ErrPoolFull
		}
		evict := heap.Pop(&m.pq).(*mempoolEntry)
		m.forgetLocked(evict)
	}

	entry := &mempoolEntry{tx: tx, txid: id, size: size, priority: priority}
	m.byID[id] = entry
	heap.Push(&m.pq, entry)
	if tx.Kind == TxAccount && tx.From != nil {
		if m.byNonce[*tx.From] == nil {
			m.byNonce[*tx.From] = make(map[uint64]Hash)
		}
		m.byNonce[*tx.From][tx.Nonce] = id
	}
	return nil
}

// removeLocked removes an entry from both indices and the heap; callers
// must hold m.mu.
func (m *Mempool) removeLocked(id Hash) {
	entry, ok := m.byID[id]
	if !ok {
		return
	}
	heap.Remove(&m.pq, entry.index)
	m.forgetLocked(entry)
}

func (m *Mempool) forgetLocked(entry *mempoolEntry) {
	delete(m.byID, entry.txid)
	if entry.tx.Kind == TxAccount && entry.tx.From != nil {
		if nonces, ok := m.byNonce[*entry.tx.From]; ok {
			delete(nonces, entry.tx.Nonce)
			if len(nonces) == 0 {
				delete(m.byNonce, *entry.tx.From)
			}
		}
	}
}

// Remove drops a transaction by id; idempotent.
func (m *Mempool) Remove(id Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
}

// Top returns up to n transactions, ordered by descending fee-per-byte.
func (m *Mempool) Top(n int) []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]*mempoolEntry, len(m.pq))
	copy(entries, m.pq)
	// Sort a copy rather than draining the live heap.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].priority > entries[j-1].priority; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	if n > len(entries) || n < 0 {
		n = len(entries)
	}
	out := make([]Transaction, n)
	for i := 0; i < n; i++ {
		out[i] = entries[i].tx
	}
	return out
}

// Len returns the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Has reports whether a transaction id is currently pending.
func (m *Mempool) Has(id Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}
