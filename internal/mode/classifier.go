package mode

import (
	"sync"
	"time"
)

// DefaultDowngradeDelay is how long a slower reading must hold before the
// classifier commits a downgrade. GPS speed is noisy near zero; stopping at a
// light must not flip a cyclist back to walking.
const DefaultDowngradeDelay = 10 * time.Second

// Classifier decides the current movement mode from instantaneous speed.
// Upgrades apply immediately; downgrades sit behind a single re-armable
// timer. At most one pending downgrade exists at a time.
type Classifier struct {
	mu             sync.Mutex
	current        Mode
	vehicleEnabled bool
	delay          time.Duration

	pending       *time.Timer
	pendingTarget Mode

	// onDowngrade is invoked outside the classifier lock when a pending
	// downgrade commits.
	onDowngrade func(Mode)
}

func NewClassifier(initial Mode, vehicleEnabled bool, delay time.Duration, onDowngrade func(Mode)) *Classifier {
	if delay <= 0 {
		delay = DefaultDowngradeDelay
	}
	return &Classifier{
		current:        initial,
		vehicleEnabled: vehicleEnabled,
		delay:          delay,
		onDowngrade:    onDowngrade,
	}
}

func (c *Classifier) Current() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Observe feeds one accepted speed reading and returns the mode in effect
// after the decision. A faster-or-equal candidate applies immediately and
// cancels any pending downgrade; a slower candidate arms (or keeps) the
// downgrade timer without changing the current mode.
func (c *Classifier) Observe(speedKmh float64) Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidate := Candidate(speedKmh, c.vehicleEnabled)

	if candidate >= c.current {
		c.cancelPendingLocked()
		c.current = candidate
		return c.current
	}

	if c.pending != nil && c.pendingTarget == candidate {
		// Timer already counting down to this mode, keep it running.
		return c.current
	}

	c.cancelPendingLocked()
	c.pendingTarget = candidate
	c.pending = time.AfterFunc(c.delay, c.commitDowngrade)
	return c.current
}

func (c *Classifier) commitDowngrade() {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.current = c.pendingTarget
	committed := c.current
	cb := c.onDowngrade
	c.mu.Unlock()

	if cb != nil {
		cb(committed)
	}
}

// Set forces the current mode and drops any pending downgrade. Used when
// restoring persisted or imported state.
func (c *Classifier) Set(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPendingLocked()
	c.current = m
}

// Stop cancels the pending downgrade timer, if any. Called on shutdown.
func (c *Classifier) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPendingLocked()
}

func (c *Classifier) cancelPendingLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}
