package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetargetDifficultyIncreasesWhenBlocksTooFast(t *testing.T) {
	// 10 blocks in 1/4 the expected time.
	times := []uint64{0, 250, 500, 750, 1000, 1250, 1500, 1750, 2000, 2250}
	next := retargetDifficulty(nil, 5, times, 1000)
	require.Equal(t, uint32(6), next)
}

func TestRetargetDifficultyDecreasesWhenBlocksTooSlow(t *testing.T) {
	times := []uint64{0, 5000, 10000, 15000, 20000, 25000, 30000, 35000, 40000, 45000}
	next := retargetDifficulty(nil, 5, times, 1000)
	require.Equal(t, uint32(4), next)
}

func TestRetargetDifficultyFloorsAtOne(t *testing.T) {
	times := []uint64{0, 5000, 10000, 15000, 20000, 25000, 30000, 35000, 40000, 45000}
	next := retargetDifficulty(nil, 1, times, 1000)
	require.Equal(t, uint32(1), next)
}

func TestRetargetDifficultyUnchangedWithinBand(t *testing.T) {
	times := []uint64{0, 1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000, 9000}
	next := retargetDifficulty(nil, 5, times, 1000)
	require.Equal(t, uint32(5), next)
}

func TestRetargetDifficultyNoChangeWithFewerThanTwoSamples(t *testing.T) {
	next := retargetDifficulty(nil, 5, []uint64{100}, 1000)
	require.Equal(t, uint32(5), next)
}

func TestMeetsDifficultyEvenNibbles(t *testing.T) {
	var h Hash
	h[0] = 0x00
	h[1] = 0x00
	h[2] = 0xff
	require.True(t, meetsDifficulty(h, 4))
	require.False(t, meetsDifficulty(h, 6))
}

func TestMeetsDifficultyOddNibble(t *testing.T) {
	var h Hash
	h[0] = 0x00
	h[1] = 0x0f
	require.True(t, meetsDifficulty(h, 3))
	require.False(t, meetsDifficulty(h, 4))
}

func TestMeetsDifficultyZero(t *testing.T) {
	var h Hash
	h[0] = 0xff
	require.True(t, meetsDifficulty(h, 0))
}
