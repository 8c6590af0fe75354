package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewMicroBreaker(3, time.Minute)

	assert.True(t, b.TryAcquire())
	b.OnFailure()
	b.OnFailure()
	assert.True(t, b.Ready(), "still closed below the threshold")
	b.OnFailure()

	assert.False(t, b.Ready())
	assert.False(t, b.TryAcquire())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)
	b.OnFailure()
	assert.False(t, b.TryAcquire())

	time.Sleep(20 * time.Millisecond)

	// One probe allowed after the cool-down; a second concurrent caller
	// is still rejected.
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())

	b.OnSuccess()
	assert.True(t, b.Ready())
	assert.True(t, b.TryAcquire())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)
	b.OnFailure()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.TryAcquire())
	b.OnFailure()

	assert.False(t, b.TryAcquire(), "failed probe reopens for the full cool-down")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewMicroBreaker(3, time.Minute)
	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()

	assert.True(t, b.Ready(), "success clears the consecutive failure run")
}
