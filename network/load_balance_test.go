package network

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobinDistribution(t *testing.T) {
	lb := NewLoadBalanceRoundRobin()

	const loopCount = 4
	const connCount = 10
	counts := make([]int, loopCount)
	for i := 0; i < connCount; i++ {
		idx := lb.AllocLoop(fmt.Sprintf("conn#%d", i), loopCount)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, loopCount)
		counts[idx]++
	}

	// every loop gets either floor or ceil of connCount/loopCount
	floor := connCount / loopCount
	ceil := (connCount + loopCount - 1) / loopCount
	for i, c := range counts {
		assert.True(t, c == floor || c == ceil, "loop %d got %d connections", i, c)
	}
}

func TestRoundRobinCycles(t *testing.T) {
	lb := NewLoadBalanceRoundRobin()
	var seq []int
	for i := 0; i < 6; i++ {
		seq = append(seq, lb.AllocLoop("", 3))
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, seq)
}

func TestHashStable(t *testing.T) {
	lb := NewLoadBalanceHash()

	first := lb.AllocLoop("session-42", 8)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, lb.AllocLoop("session-42", 8))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 8)
}

func TestHashSpreads(t *testing.T) {
	lb := NewLoadBalanceHash()
	seen := make(map[int]bool)
	for i := 0; i < 64; i++ {
		seen[lb.AllocLoop(fmt.Sprintf("key-%d", i), 4)] = true
	}
	// 64 distinct keys over 4 buckets should touch more than one bucket
	assert.Greater(t, len(seen), 1)
}
