package gate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_BurstThenReject(t *testing.T) {
	th := NewThrottle(0.001, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, th.Allow("10.0.0.1"), "request %d within burst", i+1)
	}
	assert.False(t, th.Allow("10.0.0.1"))

	// other clients have their own bucket
	assert.True(t, th.Allow("10.0.0.2"))
	assert.Equal(t, 2, th.Len())
}

func TestThrottle_SweepDropsIdleLimiters(t *testing.T) {
	th := NewThrottle(1000, 1)
	for i := 0; i < sweepThreshold; i++ {
		th.getLimiter(fmt.Sprintf("ip-%d", i))
	}
	assert.Equal(t, sweepThreshold, th.Len())

	// untouched buckets are full, so the next insert sweeps them all
	th.Allow("fresh")
	assert.Equal(t, 1, th.Len())
}

func TestThrottle_Sweep(t *testing.T) {
	th := NewThrottle(0.001, 2)
	th.Allow("10.0.0.1")
	th.getLimiter("10.0.0.2")

	// 10.0.0.1 spent a token and still holds state
	assert.Equal(t, 1, th.Sweep())
	assert.Equal(t, 1, th.Len())
}
