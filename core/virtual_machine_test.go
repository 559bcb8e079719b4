package core

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func pushOp(v int64) []byte {
	out := []byte{byte(OpPush)}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(out, b[:]...)
}

func testCtx() *BlockchainContext {
	return &BlockchainContext{
		Timestamp:   1000,
		Index:       1,
		Caller:      Address{1},
		Contract:    Address{2},
		State:       NewState(),
		Hardware:    NewHardwareQueue(),
		BlockHash:   Hash{3},
		RateLimiter: NewSyscallRateLimiter(),
	}
}

func TestVMAddAndStop(t *testing.T) {
	code := append(pushOp(2), pushOp(3)...)
	code = append(code, byte(OpAdd), byte(OpStop))

	vm := NewVM(code, 100, testCtx())
	gas, err := vm.Run()
	require.NoError(t, err)
	require.Len(t, vm.stack, 1)
	require.Equal(t, int64(5), vm.stack[0])
	require.Less(t, gas, uint64(100))
}

func TestVMDivByZero(t *testing.T) {
	code := append(pushOp(1), pushOp(0)...)
	code = append(code, byte(OpDiv))

	vm := NewVM(code, 100, testCtx())
	_, err := vm.Run()
	var vmErr *VmError
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, VmDivByZero, vmErr.Kind)
}

func TestVMOutOfGas(t *testing.T) {
	code := append(pushOp(1), byte(OpStop))
	vm := NewVM(code, 1, testCtx())
	_, err := vm.Run()
	var vmErr *VmError
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, VmOutOfGas, vmErr.Kind)
}

func TestVMStackUnderflow(t *testing.T) {
	code := []byte{byte(OpAdd)}
	vm := NewVM(code, 100, testCtx())
	_, err := vm.Run()
	var vmErr *VmError
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, VmStackUnderflow, vmErr.Kind)
}

func TestVMUnknownOpcode(t *testing.T) {
	vm := NewVM([]byte{0xfe}, 100, testCtx())
	_, err := vm.Run()
	var vmErr *VmError
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, VmUnknownOpCode, vmErr.Kind)
}

func TestVMJumpOutOfBoundsRejected(t *testing.T) {
	code := append(pushOp(100), byte(OpJump))
	vm := NewVM(code, 100, testCtx())
	_, err := vm.Run()
	var vmErr *VmError
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, VmMalformedBytecode, vmErr.Kind)
}

func TestVMSLoadSStoreRoundTrip(t *testing.T) {
	ctx := testCtx()
	code := append(pushOp(7), pushOp(42)...) // key=7, value=42 (SSTORE pops value then key)
	code = append(code, byte(OpSStore))
	code = append(code, pushOp(7)...)
	code = append(code, byte(OpSLoad))

	vm := NewVM(code, 10000, ctx)
	_, err := vm.Run()
	require.NoError(t, err)
	require.Equal(t, int64(42), vm.stack[len(vm.stack)-1])
	require.Equal(t, uint64(42), ctx.State.StorageGet(ctx.Contract, 7))
}

func TestVMSyscallReadSensorRequiresCapability(t *testing.T) {
	ctx := testCtx()
	ctx.Hardware.RegisterDevice(1, "temp")

	code := append(pushOp(1), pushOp(SyscallReadSensor)...)
	code = append(code, byte(OpSyscall))

	vm := NewVM(code, 10000, ctx)
	_, err := vm.Run()
	var vmErr *VmError
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, VmUnauthorized, vmErr.Kind)

	ctx.State.GrantCapability(ctx.Contract, Capability{Type: CapReadSensor, DeviceID: 1})
	ctx.Timestamp += 1000 // the first run used this syscall's rate-limit slot
	vm2 := NewVM(code, 10000, ctx)
	_, err = vm2.Run()
	require.NoError(t, err)
	require.Equal(t, int64(0), vm2.stack[len(vm2.stack)-1])
}

func TestVMSyscallWriteActuatorQueuesDeferred(t *testing.T) {
	ctx := testCtx()
	ctx.Hardware.RegisterDevice(5, "valve")
	ctx.State.GrantCapability(ctx.Contract, Capability{Type: CapWriteActuator, DeviceID: 5})

	// execSyscall pops id, then deviceID, then value (LIFO), so the operands
	// must be pushed in the reverse order: value, deviceID, id.
	code := append(pushOp(99), pushOp(5)...) // value=99, deviceID=5
	code = append(code, pushOp(SyscallWriteActuator)...)
	code = append(code, byte(OpSyscall))

	vm := NewVM(code, 10000, ctx)
	_, err := vm.Run()
	require.NoError(t, err)

	pending := ctx.Hardware.PendingFor(ctx.BlockHash)
	require.Len(t, pending, 1)
	require.Equal(t, uint64(99), pending[0].Value)
}

func TestVMSyscallRateLimited(t *testing.T) {
	ctx := testCtx()
	ctx.Hardware.RegisterDevice(1, "temp")
	ctx.State.GrantCapability(ctx.Contract, Capability{Type: CapReadSensor, DeviceID: 1})

	code := append(pushOp(1), pushOp(SyscallReadSensor)...)
	code = append(code, byte(OpSyscall))

	vm1 := NewVM(code, 10000, ctx)
	_, err := vm1.Run()
	require.NoError(t, err)

	vm2 := NewVM(code, 10000, ctx) // same block timestamp -> within rate window
	_, err = vm2.Run()
	var vmErr *VmError
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, VmRateLimited, vmErr.Kind)
}

func TestVMSyscallRejectsUnknownSyscallID(t *testing.T) {
	ctx := testCtx()
	code := append(pushOp(999), byte(OpSyscall))
	vm := NewVM(code, 10000, ctx)
	_, err := vm.Run()
	var vmErr *VmError
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, VmInvalidSyscall, vmErr.Kind)
}

func TestGasCostFallsBackToDefaultForUnpriced(t *testing.T) {
	require.Equal(t, defaultGasCost, GasCost(OpCode(250)))
}
