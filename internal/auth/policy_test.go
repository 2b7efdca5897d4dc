package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockoutPolicy_NoLockoutBelowThreshold(t *testing.T) {
	p := DefaultLockoutPolicy()
	for n := 0; n < p.MaxAttempts; n++ {
		require.Zero(t, p.Delay(n), "n=%d", n)
	}
}

func TestLockoutPolicy_DoublesAndCaps(t *testing.T) {
	p := DefaultLockoutPolicy()
	require.Equal(t, 30*time.Second, p.Delay(5))
	require.Equal(t, time.Minute, p.Delay(6))
	require.Equal(t, 2*time.Minute, p.Delay(7))
	require.Equal(t, 15*time.Minute, p.Delay(10))
	require.Equal(t, 15*time.Minute, p.Delay(100))
}

func TestLockoutPolicy_Monotonic(t *testing.T) {
	p := DefaultLockoutPolicy()
	prev := time.Duration(0)
	for n := 0; n < 200; n++ {
		d := p.Delay(n)
		require.GreaterOrEqual(t, d, prev, "n=%d", n)
		prev = d
	}
}
