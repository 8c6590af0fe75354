package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBackoffDoubles(t *testing.T) {
	assert.Equal(t, time.Second, RetryBackoff(1))
	assert.Equal(t, 2*time.Second, RetryBackoff(2))
	assert.Equal(t, 4*time.Second, RetryBackoff(3))
	assert.Equal(t, 8*time.Second, RetryBackoff(4))
}

func TestRetryBackoffCapped(t *testing.T) {
	assert.Equal(t, 5*time.Minute, RetryBackoff(20))
	assert.Equal(t, 5*time.Minute, RetryBackoff(100), "large attempt counts must not overflow")
}

func TestRetryBackoffFloor(t *testing.T) {
	assert.Equal(t, time.Second, RetryBackoff(0))
	assert.Equal(t, time.Second, RetryBackoff(-3))
}
