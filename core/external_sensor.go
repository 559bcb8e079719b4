package core

// Hardware deferral queue.
//
// Actuator writes triggered by VM syscalls are never applied immediately:
// they are queued keyed by the block hash whose execution produced them,
// and only committed once that block reaches confirmation depth (see
// ledger.go's ApplyBlock). Sensor reads are synchronous and do
// not go through this queue. write_direct is an emergency-only bypass used
// outside consensus — it is never called from apply_block/create_block.

import "sync"

// Device is a registered sensor or actuator a contract may be granted
// capabilities over.
type Device struct {
	ID    uint64
	Name  string
	Value uint64
}

// HardwareQueue tracks registered devices, their last committed value, and
// the FIFO queue of writes awaiting finality per block hash.
type HardwareQueue struct {
	mu      sync.Mutex
	devices map[uint64]*Device
	pending map[Hash][]DeferredAction
}

// NewHardwareQueue creates an empty queue with no registered devices.
func NewHardwareQueue() *HardwareQueue {
	return &HardwareQueue{
		devices: make(map[uint64]*Device),
		pending: make(map[Hash][]DeferredAction),
	}
}

// RegisterDevice adds a sensor or actuator to the registry.
func (h *HardwareQueue) RegisterDevice(id uint64, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices[id] = &Device{ID: id, Name: name}
}

// ReadSensor returns a device's last committed value.
func (h *HardwareQueue) ReadSensor(id uint64) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.devices[id]
	if !ok {
		return 0, ErrUnknownDevice
	}
	return d.Value, nil
}

// Queue appends a deferred actuator write for blockHash. Returns
// ErrUnknownDevice if deviceID was never registered.
func (h *HardwareQueue) Queue(blockHash Hash, deviceID, value, nowMs uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.devices[deviceID]; !ok {
		return ErrUnknownDevice
	}
	h.pending[blockHash] = append(h.pending[blockHash], DeferredAction{
		BlockHash:  blockHash,
		DeviceID:   deviceID,
		Value:      value,
		EnqueuedMs: nowMs,
	})
	return nil
}

// Commit applies and removes every deferred action queued for blockHash, in
// FIFO order. Calling Commit again for the same hash is a no-op.
func (h *HardwareQueue) Commit(blockHash Hash) {
	h.mu.Lock()
	defer h.mu.Unlock()
	actions, ok := h.pending[blockHash]
	if !ok {
		return
	}
	for _, a := range actions {
		if d, ok := h.devices[a.DeviceID]; ok {
			d.Value = a.Value
		}
	}
	delete(h.pending, blockHash)
}

// PendingFor returns a copy of the actions still queued for blockHash,
// primarily for tests and diagnostics.
func (h *HardwareQueue) PendingFor(blockHash Hash) []DeferredAction {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := append([]DeferredAction(nil), h.pending[blockHash]...)
	return out
}

// Clone returns an independent copy of the device registry with an empty
// pending set. create_block uses it to project contract execution without
// letting a speculative candidate queue a deferred action — or read a value
// a later-discarded write produced — against the live queue that apply_block
// will commit against.
func (h *HardwareQueue) Clone() *HardwareQueue {
	h.mu.Lock()
	defer h.mu.Unlock()
	devices := make(map[uint64]*Device, len(h.devices))
	for id, d := range h.devices {
		cp := *d
		devices[id] = &cp
	}
	return &HardwareQueue{
		devices: devices,
		pending: make(map[Hash][]DeferredAction),
	}
}

// WriteDirect bypasses the deferral queue entirely. It is an emergency-only
// path invoked outside of consensus (e.g. an operator safety shutoff) and
// must never be called from block validation or application.
func (h *HardwareQueue) WriteDirect(deviceID, value uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.devices[deviceID]
	if !ok {
		return ErrUnknownDevice
	}
	d.Value = value
	return nil
}
