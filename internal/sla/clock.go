// Package sla evaluates deadlines for time-bound workflow steps.
//
// Every function is pure: the caller supplies "now" and decides what to do
// with a breach (flag it, escalate it, show it). Nothing here mutates state.
package sla

import (
	"slices"
	"time"
)

// Assessment is the read-side view of a single deadline.
type Assessment struct {
	Deadline  time.Time     `json:"deadline"`
	Remaining time.Duration `json:"remaining"`
	Breached  bool          `json:"breached"`
}

// Remaining returns the time left until deadline. A negative value means the
// deadline has passed by that amount.
func Remaining(deadline, now time.Time) time.Duration {
	return deadline.Sub(now)
}

// IsBreached reports whether now is strictly after deadline while current is
// not one of the terminal statuses. A zero deadline is never breached.
func IsBreached[S comparable](deadline, now time.Time, terminal []S, current S) bool {
	if deadline.IsZero() {
		return false
	}
	if !now.After(deadline) {
		return false
	}
	return !slices.Contains(terminal, current)
}

// Assess bundles Remaining and IsBreached for a single deadline.
func Assess[S comparable](deadline, now time.Time, terminal []S, current S) Assessment {
	a := Assessment{Deadline: deadline}
	if deadline.IsZero() {
		return a
	}
	a.Remaining = Remaining(deadline, now)
	a.Breached = IsBreached(deadline, now, terminal, current)
	return a
}
