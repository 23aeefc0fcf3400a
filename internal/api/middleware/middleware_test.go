package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter(t *testing.T) {
	t.Run("uses the configured rate", func(t *testing.T) {
		rl := NewRateLimiter(30)
		assert.Equal(t, 30, rl.rate)
		assert.True(t, rl.GetLimiter("10.0.0.1").Allow())
	})

	t.Run("zero rate falls back to the default", func(t *testing.T) {
		rl := NewRateLimiter(0)
		require.Equal(t, defaultRequestsPerMinute, rl.rate)
		assert.True(t, rl.GetLimiter("10.0.0.2").Allow())
	})

	t.Run("negative rate falls back to the default", func(t *testing.T) {
		rl := NewRateLimiter(-5)
		require.Equal(t, defaultRequestsPerMinute, rl.rate)
		assert.True(t, rl.GetLimiter("10.0.0.3").Allow())
	})
}
