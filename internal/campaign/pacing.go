package campaign

import (
	"time"

	"github.com/zapflow/campaignd/internal/model"
)

// StepDelay returns the increment added when advancing to the recipient at
// the given sequence position. Position 0 starts the campaign and adds
// nothing; every longerIntervalAfter-th step inserts the burst-breaker
// interval instead of the base one.
func StepDelay(position int, s model.PacingSettings) time.Duration {
	if position <= 0 {
		return 0
	}
	if s.LongerIntervalAfter > 0 && position%s.LongerIntervalAfter == 0 {
		return time.Duration(s.GreaterInterval) * time.Second
	}
	return time.Duration(s.MessageInterval) * time.Second
}

// CumulativeDelays computes the pacing delay for every position in
// [0, n). The result is non-decreasing; delays are measured from campaign
// start and carried as task data, never as chained queue delays.
func CumulativeDelays(n int, s model.PacingSettings) []time.Duration {
	out := make([]time.Duration, n)
	var acc time.Duration
	for i := 0; i < n; i++ {
		acc += StepDelay(i, s)
		out[i] = acc
	}
	return out
}
