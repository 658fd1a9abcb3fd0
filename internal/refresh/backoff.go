package refresh

import "time"

// Backoff is the ordered wait schedule applied between poll attempts while
// an asynchronous status-refresh job is pending.
type Backoff []time.Duration

// DefaultBackoff is front-loaded short for a quick win when the vehicle
// reports fast, and back-loaded long to avoid tight polling on a slow round
// trip. Exhausting it is a timeout, not an error.
var DefaultBackoff = Backoff{
	30 * time.Second,
	120 * time.Second,
	120 * time.Second,
	150 * time.Second,
	180 * time.Second,
}

// Total is the full wait before a pending job is declared timed out.
func (b Backoff) Total() time.Duration {
	var sum time.Duration
	for _, d := range b {
		sum += d
	}
	return sum
}
