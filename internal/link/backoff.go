package link

import (
	"math"
	"time"
)

// maxShift keeps base << shift well inside the int64 range for any sane base.
const maxShift = 30

// BackoffDelay returns the delay before reconnect attempt n (1-indexed): base * 2^(n-1).
// A positive limit caps the delay, zero or less leaves it uncapped.
func BackoffDelay(attempt int, base, limit time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	shift := min(attempt-1, maxShift)
	delay := time.Duration(math.MaxInt64)
	if float64(base)*math.Pow(2, float64(shift)) < float64(math.MaxInt64) {
		delay = base << shift
	}

	if limit > 0 && delay > limit {
		return limit
	}

	return delay
}
