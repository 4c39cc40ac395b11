package worker

import (
	"math/rand/v2"
	"time"
)

// retryDelay computes the wait before a task's next attempt: exponential in
// the attempt number, capped, with full jitter so a burst of failing topics
// doesn't thunder back onto the queue at the same instant.
func retryDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if maxDelay <= 0 {
		maxDelay = base
	}
	if attempt < 1 {
		attempt = 1
	}

	ceiling := base
	for i := 1; i < attempt; i++ {
		if ceiling > maxDelay/2 {
			ceiling = maxDelay
			break
		}
		ceiling *= 2
	}
	if ceiling > maxDelay {
		ceiling = maxDelay
	}
	return rand.N(ceiling + 1)
}
