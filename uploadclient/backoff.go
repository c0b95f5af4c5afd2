package uploadclient

import (
	"math/rand/v2"
	"time"
)

// backoffDelay returns base*2^(attempt-1) capped at max, plus up to 50% random jitter.
// attempt counts from 1.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if half := int64(d / 2); half > 0 {
		d += time.Duration(rand.Int64N(half + 1))
	}
	return d
}
