package core

// gas_table.go is the canonical gas-pricing table for every opcode the
// deterministic VM recognizes. Gas is charged before execution of each
// opcode; exhaustion aborts the transaction with OutOfGas. SLOAD is cheap
// (a map read); SSTORE is expensive (the value persists in state and feeds
// the state-root hash).

import "sync"

const defaultGasCost uint64 = 1

var gasTable = map[OpCode]uint64{
	OpStop: 0,
	OpPush: 3,
	OpPop:  2,
	OpDup:  3,
	OpSwap: 3,

	OpAdd: 3,
	OpSub: 3,
	OpMul: 5,
	OpDiv: 5,
	OpMod: 5,

	OpJump:  8,
	OpJumpI: 10,
	OpEq:    3,
	OpLt:    3,
	OpGt:    3,

	OpSLoad:  200,
	OpSStore: 5_000,

	OpBalance:   400,
	OpCaller:    2,
	OpValue:     2,
	OpTimestamp: 2,
	OpNumber:    2,

	OpSyscall: 2_000,
}

var warnedOnce sync.Map

// GasCost returns the base gas cost for a single opcode. Unpriced opcodes
// fall back to defaultGasCost rather than aborting outright — the opcode
// dispatcher itself is what rejects truly unknown opcodes with
// UnknownOpCode.
func GasCost(op OpCode) uint64 {
	if cost, ok := gasTable[op]; ok {
		return cost
	}
	if _, logged := warnedOnce.LoadOrStore(op, true); !logged {
		logger := globalVMLogger()
		logger.Warnf("gas_table: missing cost for opcode %s, charging default", op)
	}
	return defaultGasCost
}
