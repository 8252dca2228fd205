package session

import (
	"testing"
	"time"

	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"), "limits are per user")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("u1"))
}

func TestRateLimiter_Forget(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, time.Hour)
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))

	rl.Forget("u1")
	assert.True(t, rl.Allow("u1"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, time.Second)
	assert.Nil(t, rl)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow(domain.UserID("u")))
	}
	rl.Forget("u")
}
