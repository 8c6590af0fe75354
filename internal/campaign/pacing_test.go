package campaign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/campaignd/internal/model"
)

func TestStepDelay(t *testing.T) {
	s := model.PacingSettings{
		MessageInterval:     10,
		LongerIntervalAfter: 2,
		GreaterInterval:     30,
	}

	assert.Equal(t, time.Duration(0), StepDelay(0, s))
	assert.Equal(t, 10*time.Second, StepDelay(1, s))
	assert.Equal(t, 30*time.Second, StepDelay(2, s))
	assert.Equal(t, 10*time.Second, StepDelay(3, s))
	assert.Equal(t, 30*time.Second, StepDelay(4, s))
}

func TestCumulativeDelays(t *testing.T) {
	s := model.PacingSettings{
		MessageInterval:     10,
		LongerIntervalAfter: 2,
		GreaterInterval:     30,
	}

	delays := CumulativeDelays(3, s)
	require.Len(t, delays, 3)
	assert.Equal(t, time.Duration(0), delays[0])
	assert.Equal(t, 10*time.Second, delays[1])
	assert.Equal(t, 40*time.Second, delays[2])
}

func TestCumulativeDelaysMonotonic(t *testing.T) {
	delays := CumulativeDelays(50, model.DefaultPacingSettings())
	require.Len(t, delays, 50)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1], "position %d", i)
	}
}

func TestStepDelayNoLongerInterval(t *testing.T) {
	s := model.PacingSettings{MessageInterval: 5, LongerIntervalAfter: 0, GreaterInterval: 60}

	// With the threshold disabled every step after the first uses the
	// base interval.
	for i := 1; i < 10; i++ {
		assert.Equal(t, 5*time.Second, StepDelay(i, s))
	}
}
