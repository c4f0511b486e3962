package monitor

import "time"

// Tracker records the last time any player was seen online and derives
// how long the server has been idle since then.
type Tracker struct {
	lastActive time.Time
}

// NewTracker creates a tracker seeded with a last-active instant.
func NewTracker(lastActive time.Time) *Tracker {
	return &Tracker{lastActive: lastActive}
}

// Observe advances the last-active instant when players are online.
// Zero-player samples leave it untouched.
func (t *Tracker) Observe(players int, now time.Time) {
	if players > 0 {
		t.lastActive = now
	}
}

// IdleFor returns the duration since the last observed activity.
// Never negative, even across clock adjustments.
func (t *Tracker) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(t.lastActive)
	if idle < 0 {
		return 0
	}
	return idle
}

// LastActive returns the last-active instant.
func (t *Tracker) LastActive() time.Time {
	return t.lastActive
}
