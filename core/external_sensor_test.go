package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHardwareQueueReadUnregisteredDevice(t *testing.T) {
	h := NewHardwareQueue()
	_, err := h.ReadSensor(1)
	require.ErrorIs(t, err, ErrUnknownDevice)
}

func TestHardwareQueueDeferredCommit(t *testing.T) {
	h := NewHardwareQueue()
	h.RegisterDevice(1, "valve")

	blockHash := Hash{1}
	require.NoError(t, h.Queue(blockHash, 1, 42, 1000))

	v, err := h.ReadSensor(1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v, "queued writes must not be visible before commit")

	require.Len(t, h.PendingFor(blockHash), 1)

	h.Commit(blockHash)
	v, err = h.ReadSensor(1)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)
	require.Empty(t, h.PendingFor(blockHash))
}

func TestHardwareQueueCommitIsIdempotent(t *testing.T) {
	h := NewHardwareQueue()
	h.RegisterDevice(1, "valve")
	blockHash := Hash{1}
	require.NoError(t, h.Queue(blockHash, 1, 42, 1000))
	h.Commit(blockHash)
	h.Commit(blockHash) // must not panic or double-apply
	v, _ := h.ReadSensor(1)
	require.Equal(t, uint64(42), v)
}

func TestHardwareQueueFIFOOrdering(t *testing.T) {
	h := NewHardwareQueue()
	h.RegisterDevice(1, "valve")
	blockHash := Hash{1}
	require.NoError(t, h.Queue(blockHash, 1, 1, 1000))
	require.NoError(t, h.Queue(blockHash, 1, 2, 1001))
	require.NoError(t, h.Queue(blockHash, 1, 3, 1002))

	h.Commit(blockHash)
	v, _ := h.ReadSensor(1)
	require.Equal(t, uint64(3), v, "last queued write for a device wins")
}

func TestHardwareQueueRejectsUnknownDeviceOnQueue(t *testing.T) {
	h := NewHardwareQueue()
	err := h.Queue(Hash{1}, 99, 1, 1000)
	require.ErrorIs(t, err, ErrUnknownDevice)
}

func TestHardwareQueueWriteDirectBypassesDeferral(t *testing.T) {
	h := NewHardwareQueue()
	h.RegisterDevice(1, "valve")
	require.NoError(t, h.WriteDirect(1, 7))
	v, err := h.ReadSensor(1)
	require.NoError(t, err)
	require.Equal(t, uint64(7), v)

	err = h.WriteDirect(99, 1)
	require.ErrorIs(t, err, ErrUnknownDevice)
}
