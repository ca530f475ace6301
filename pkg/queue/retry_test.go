package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDefaults(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{})

	assert.True(t, policy.ShouldRetry(0))
	assert.True(t, policy.ShouldRetry(7))
	assert.False(t, policy.ShouldRetry(8))
	assert.False(t, policy.ShouldRetry(100))
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	})

	assert.Equal(t, time.Second, policy.NextRetryDelay(0))
	assert.Equal(t, time.Second, policy.NextRetryDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextRetryDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextRetryDelay(3))
	// Capped at the max.
	assert.Equal(t, 10*time.Second, policy.NextRetryDelay(10))
}

func TestRetryPolicyNextRetryTime(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{InitialDelay: time.Minute})

	next := policy.NextRetryTime(1)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), next, 2*time.Second)
}
