package dispatch

import (
	"math"
	"time"
)

// Backoff constants from §4.4: base 60s, x3 exponent, 15-minute ceiling,
// ±25% uniform jitter.
const (
	BaseMs     = 60_000
	Exponent   = 3.0
	CeilingMs  = 900_000
	JitterSpan = 0.25
)

// ComputeRetryBackoffMs returns the backoff duration in milliseconds for the
// nth retry (0-indexed), using jitter in [0,1) from jitterFn (0.5 means no
// jitter adjustment — the result equals the unjittered base, per §8
// testable property 7). Callers pass rand.Float64 in production and a fixed
// value in tests.
func ComputeRetryBackoffMs(n int, jitterFn func() float64) int64 {
	base := float64(BaseMs) * math.Pow(Exponent, float64(n))
	if base > CeilingMs {
		base = CeilingMs
	}

	j := jitterFn()
	// jitterFn returns [0,1); map to [-JitterSpan, +JitterSpan] around base,
	// centered so jitterFn()==0.5 reproduces base exactly.
	factor := 1.0 + (j-0.5)*2*JitterSpan
	result := base * factor

	if result < 0 {
		result = 0
	}
	ceilWithJitter := CeilingMs * (1.0 + JitterSpan)
	if result > ceilWithJitter {
		result = ceilWithJitter
	}
	return int64(result)
}

// NextRetryAt returns the time at which a retry numbered n, failing at
// failedAt, becomes eligible for the blocked-recovery pass to reconsider.
func NextRetryAt(failedAt time.Time, n int, jitterFn func() float64) time.Time {
	ms := ComputeRetryBackoffMs(n, jitterFn)
	return failedAt.Add(time.Duration(ms) * time.Millisecond)
}
