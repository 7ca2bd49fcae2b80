package daemon

import "time"

const minRestartDelay = 50 * time.Millisecond

// backoff dampens crash loops. The delay doubles for every crash that
// lands before the previous delay had elapsed and resets once a child
// outlives it.
type backoff struct {
	delay time.Duration
}

func newBackoff() *backoff {
	return &backoff{delay: minRestartDelay}
}

// Next returns how long to wait before the next restart, given how
// long the child ran.
func (b *backoff) Next(lifetime time.Duration) time.Duration {
	if lifetime > b.delay {
		b.delay = minRestartDelay
	} else {
		b.delay *= 2
	}
	return b.delay
}
