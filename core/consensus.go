package core

// consensus.go holds the PoA+PoW difficulty retarget used by the chain
// manager (ledger.go). Retargeting is a deliberately coarse single-step
// adjustment rather than a continuous formula: every peer that replays the
// same block history reaches the identical difficulty because every input
// (block timestamps, the interval, the target) is already part of
// consensus-visible state.

import "github.com/sirupsen/logrus"

// retargetDifficulty compares the actual time spent producing the last
// interval blocks against the expected interval*targetBlockTime. If actual
// time is less than half of expected, difficulty increases by 1 (blocks
// came too fast); if actual time is more than double expected, difficulty
// decreases by 1 with a floor of 1 (blocks came too slow); otherwise
// difficulty is unchanged.
func retargetDifficulty(logger *logrus.Logger, currentDifficulty uint32, blockTimesMs []uint64, targetBlockTimeMs uint64) uint32 {
	n := len(blockTimesMs)
	if n < 2 {
		return currentDifficulty
	}

	actual := blockTimesMs[n-1] - blockTimesMs[0]
	expected := targetBlockTimeMs * uint64(n-1)
	if expected == 0 {
		return currentDifficulty
	}

	next := currentDifficulty
	switch {
	case actual < expected/2:
		next = currentDifficulty + 1
	case actual > expected*2:
		if currentDifficulty > 1 {
			next = currentDifficulty - 1
		} else {
			next = 1
		}
	}

	if next != currentDifficulty && logger != nil {
		logger.WithFields(logrus.Fields{
			"from":     currentDifficulty,
			"to":       next,
			"actual":   actual,
			"expected": expected,
		}).Info("consensus: difficulty retarget")
	}
	return next
}

// meetsDifficulty reports whether hash has at least difficulty leading hex
// zero nibbles — equivalently, at least difficulty/2 leading zero bytes plus
// (for odd difficulty) a zero high nibble on the following byte.
func meetsDifficulty(hash Hash, difficulty uint32) bool {
	fullZeroBytes := difficulty / 2
	for i := uint32(0); i < fullZeroBytes; i++ {
		if int(i) >= len(hash) || hash[i] != 0 {
			return false
		}
	}
	if difficulty%2 == 1 {
		idx := int(fullZeroBytes)
		if idx >= len(hash) {
			return false
		}
		if hash[idx]>>4 != 0 {
			return false
		}
	}
	return true
}
