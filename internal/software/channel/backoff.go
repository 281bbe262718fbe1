package channel

import "time"

// Backoff is the reconnect delay schedule: Initial, doubled after every
// failed attempt, capped at Max. It resets after a successful join.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff starts at one second and caps at thirty.
func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Max: 30 * time.Second}
}

func (b Backoff) withDefaults() Backoff {
	def := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = def.Initial
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	return b
}

// Next returns the delay that follows current.
func (b Backoff) Next(current time.Duration) time.Duration {
	if current < b.Max {
		current *= 2
		if current > b.Max {
			current = b.Max
		}
	}
	return current
}
