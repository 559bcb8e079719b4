package core

// virtual_machine.go is the deterministic, metered VM that executes
// Contract-kind transaction bytecode. It is intentionally small: a
// single-byte opcode stream, a LIFO stack of int64 bounded at 1024 entries,
// fixed per-opcode gas charged before execution, and no host I/O beyond the
// block context it is handed. Every peer that applies the same block with
// the same bytecode must reach the same stack/storage/gas outcome.
//
// CALLER pushes a 160-bit Address truncated to its low 8 bytes (BALANCE
// pushes the executing contract's own balance and takes no operand) —
// the stack only holds int64 values, so addresses are represented as their
// low-order 8 bytes for equality/arithmetic comparisons against constants
// baked into contract bytecode. This is a deliberate design choice (the
// specification is silent on how address-valued opcodes interact with an
// int64-only stack) and is recorded in DESIGN.md.

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const maxStackDepth = 1024

var (
	vmLogger     *logrus.Logger
	vmLoggerOnce sync.Once
)

func globalVMLogger() *logrus.Logger {
	vmLoggerOnce.Do(func() { vmLogger = logrus.New() })
	return vmLogger
}

// SetVMLogger overrides the VM package's logger, e.g. to route through the
// node's configured logrus instance.
func SetVMLogger(l *logrus.Logger) { vmLogger = l }

// SyscallRateLimiter enforces at most one invocation of a given
// (contract, syscall id) pair per 1000ms, measured against the executing
// block's declared timestamp rather than wall-clock time, so every replica
// reaches the same verdict regardless of when it actually runs the VM.
type SyscallRateLimiter struct {
	mu   sync.Mutex
	last map[rateKey]uint64
}

type rateKey struct {
	contract Address
	syscall  int64
}

// NewSyscallRateLimiter returns an empty limiter.
func NewSyscallRateLimiter() *SyscallRateLimiter {
	return &SyscallRateLimiter{last: make(map[rateKey]uint64)}
}

// Allow reports whether a syscall invocation may proceed, recording the
// invocation's block timestamp if so.
func (r *SyscallRateLimiter) Allow(contract Address, syscallID int64, blockTimestampMs uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rateKey{contract: contract, syscall: syscallID}
	if last, ok := r.last[key]; ok {
		var delta uint64
		if blockTimestampMs >= last {
			delta = blockTimestampMs - last
		}
		if delta < 1000 {
			return false
		}
	}
	r.last[key] = blockTimestampMs
	return true
}

// Clone returns an independent copy of the limiter's recorded invocation
// times. create_block uses it to project contract execution without letting
// a speculative candidate consume the live rate-limit slot that apply_block
// will need to check against when the same block is actually applied.
func (r *SyscallRateLimiter) Clone() *SyscallRateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	last := make(map[rateKey]uint64, len(r.last))
	for k, v := range r.last {
		last[k] = v
	}
	return &SyscallRateLimiter{last: last}
}

// BlockchainContext is the environment a Contract-kind transaction executes
// against: the block it is being applied in, the calling/executing
// addresses, the value transferred, and handles to the shared state and
// hardware deferral queue.
type BlockchainContext struct {
	Timestamp   uint64
	Index       uint64
	Caller      Address
	Contract    Address
	Value       uint64
	State       *State
	Hardware    *HardwareQueue
	BlockHash   Hash
	RateLimiter *SyscallRateLimiter
}

// VM executes a single contract's bytecode under a fixed gas budget.
type VM struct {
	code  []byte
	pc    int
	stack []int64
	gas   uint64
	ctx   *BlockchainContext
}

// NewVM constructs a VM ready to execute code with the given gas budget and
// environment.
func NewVM(code []byte, gas uint64, ctx *BlockchainContext) *VM {
	return &VM{code: code, gas: gas, ctx: ctx, stack: make([]int64, 0, 64)}
}

func addrLow8(a Address) int64 {
	var v uint64
	for i := 12; i < 20; i++ {
		v = v<<8 | uint64(a[i])
	}
	return int64(v)
}

func (vm *VM) push(v int64) error {
	if len(vm.stack) >= maxStackDepth {
		return vmErr(VmStackOverflow, "stack depth exceeds 1024")
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() (int64, error) {
	if len(vm.stack) == 0 {
		return 0, vmErr(VmStackUnderflow, "pop on empty stack")
	}
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v, nil
}

func (vm *VM) chargeGas(cost uint64) error {
	if vm.gas < cost {
		return vmErr(VmOutOfGas, "insufficient gas for opcode")
	}
	vm.gas -= cost
	return nil
}

func (vm *VM) readPushOperand() (int64, error) {
	if vm.pc+8 > len(vm.code) {
		return 0, vmErr(VmMalformedBytecode, "PUSH missing 8-byte operand")
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(vm.code[vm.pc+i])
	}
	vm.pc += 8
	return int64(v), nil
}

// Run executes the bytecode to completion (an explicit STOP, running off the
// end of the stream, or an aborting error). Remaining gas is returned on
// success.
func (vm *VM) Run() (remainingGas uint64, err error) {
	for {
		if vm.pc >= len(vm.code) {
			return vm.gas, nil
		}
		op := OpCode(vm.code[vm.pc])
		vm.pc++

		if err := vm.chargeGas(GasCost(op)); err != nil {
			return 0, err
		}

		switch op {
		case OpStop:
			return vm.gas, nil

		case OpPush:
			v, err := vm.readPushOperand()
			if err != nil {
				return 0, err
			}
			if err := vm.push(v); err != nil {
				return 0, err
			}

		case OpPop:
			if _, err := vm.pop(); err != nil {
				return 0, err
			}

		case OpDup:
			if len(vm.stack) == 0 {
				return 0, vmErr(VmStackUnderflow, "DUP on empty stack")
			}
			if err := vm.push(vm.stack[len(vm.stack)-1]); err != nil {
				return 0, err
			}

		case OpSwap:
			if len(vm.stack) < 2 {
				return 0, vmErr(VmStackUnderflow, "SWAP needs two operands")
			}
			n := len(vm.stack)
			vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]

		case OpAdd, OpSub, OpMul, OpDiv, OpMod:
			b, err := vm.pop()
			if err != nil {
				return 0, err
			}
			a, err := vm.pop()
			if err != nil {
				return 0, err
			}
			res, err := arith(op, a, b)
			if err != nil {
				return 0, err
			}
			if err := vm.push(res); err != nil {
				return 0, err
			}

		case OpEq, OpLt, OpGt:
			b, err := vm.pop()
			if err != nil {
				return 0, err
			}
			a, err := vm.pop()
			if err != nil {
				return 0, err
			}
			var res int64
			switch op {
			case OpEq:
				if a == b {
					res = 1
				}
			case OpLt:
				if a < b {
					res = 1
				}
			case OpGt:
				if a > b {
					res = 1
				}
			}
			if err := vm.push(res); err != nil {
				return 0, err
			}

		case OpJump:
			dest, err := vm.pop()
			if err != nil {
				return 0, err
			}
			if dest < 0 || int(dest) >= len(vm.code) {
				return 0, vmErr(VmMalformedBytecode, "JUMP destination out of bounds")
			}
			vm.pc = int(dest)

		case OpJumpI:
			dest, err := vm.pop()
			if err != nil {
				return 0, err
			}
			cond, err := vm.pop()
			if err != nil {
				return 0, err
			}
			if cond != 0 {
				if dest < 0 || int(dest) >= len(vm.code) {
					return 0, vmErr(VmMalformedBytecode, "JUMPI destination out of bounds")
				}
				vm.pc = int(dest)
			}

		case OpSLoad:
			key, err := vm.pop()
			if err != nil {
				return 0, err
			}
			v := vm.ctx.State.StorageGet(vm.ctx.Contract, uint64(key))
			if err := vm.push(int64(v)); err != nil {
				return 0, err
			}

		case OpSStore:
			value, err := vm.pop()
			if err != nil {
				return 0, err
			}
			key, err := vm.pop()
			if err != nil {
				return 0, err
			}
			vm.ctx.State.StoragePut(vm.ctx.Contract, uint64(key), uint64(value))

		case OpBalance:
			if err := vm.push(int64(vm.ctx.State.Balance(vm.ctx.Contract))); err != nil {
				return 0, err
			}

		case OpCaller:
			if err := vm.push(addrLow8(vm.ctx.Caller)); err != nil {
				return 0, err
			}

		case OpValue:
			if err := vm.push(int64(vm.ctx.Value)); err != nil {
				return 0, err
			}

		case OpTimestamp:
			if err := vm.push(int64(vm.ctx.Timestamp)); err != nil {
				return 0, err
			}

		case OpNumber:
			if err := vm.push(int64(vm.ctx.Index)); err != nil {
				return 0, err
			}

		case OpSyscall:
			if err := vm.execSyscall(); err != nil {
				return 0, err
			}

		default:
			return 0, vmErr(VmUnknownOpCode, op.String())
		}
	}
}

func arith(op OpCode, a, b int64) (int64, error) {
	switch op {
	case OpAdd:
		return a + b, nil // wrapping i64 semantics, identical on every peer
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return 0, vmErr(VmDivByZero, "division by zero")
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return 0, vmErr(VmDivByZero, "modulo by zero")
		}
		return a % b, nil
	default:
		return 0, vmErr(VmUnknownOpCode, op.String())
	}
}

func (vm *VM) execSyscall() error {
	id, err := vm.pop()
	if err != nil {
		return err
	}

	if vm.ctx.RateLimiter != nil && !vm.ctx.RateLimiter.Allow(vm.ctx.Contract, id, vm.ctx.Timestamp) {
		return vmErr(VmRateLimited, "syscall invoked twice within 1000ms")
	}

	switch id {
	case SyscallReadSensor:
		sensorID, err := vm.pop()
		if err != nil {
			return err
		}
		capability := Capability{Type: CapReadSensor, DeviceID: uint64(sensorID)}
		if !vm.ctx.State.HasCapability(vm.ctx.Contract, capability) {
			return vmErr(VmUnauthorized, "missing ReadSensor capability")
		}
		reading, err := vm.ctx.Hardware.ReadSensor(uint64(sensorID))
		if err != nil {
			return vmErr(VmInvalidSyscall, "unknown sensor device")
		}
		return vm.push(int64(reading))

	case SyscallWriteActuator:
		deviceID, err := vm.pop()
		if err != nil {
			return err
		}
		value, err := vm.pop()
		if err != nil {
			return err
		}
		capability := Capability{Type: CapWriteActuator, DeviceID: uint64(deviceID)}
		if !vm.ctx.State.HasCapability(vm.ctx.Contract, capability) {
			return vmErr(VmUnauthorized, "missing WriteActuator capability")
		}
		if err := vm.ctx.Hardware.Queue(vm.ctx.BlockHash, uint64(deviceID), uint64(value), vm.ctx.Timestamp); err != nil {
			return vmErr(VmInvalidSyscall, "unknown actuator device")
		}
		return nil

	default:
		return vmErr(VmInvalidSyscall, "unrecognized syscall id")
	}
}
