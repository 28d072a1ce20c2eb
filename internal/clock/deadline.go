// Package clock computes attempt deadlines from a persisted start timestamp
// and a duration snapshot. The server-side value is the source of truth;
// any client countdown is display only and resynchronizes from here.
package clock

import "time"

// Deadline returns the wall-clock instant at which an attempt expires.
func Deadline(startedAt time.Time, durationMinutes int) time.Time {
	return startedAt.Add(time.Duration(durationMinutes) * time.Minute)
}

// Remaining returns the whole seconds left until the deadline, floor-rounded,
// never negative. Pure and deterministic: the caller supplies now.
func Remaining(startedAt time.Time, durationMinutes int, now time.Time) int {
	left := Deadline(startedAt, durationMinutes).Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// Expired reports whether the deadline has passed. A caller observing an
// expired in-progress attempt must trigger finalize rather than render a
// running timer.
func Expired(startedAt time.Time, durationMinutes int, now time.Time) bool {
	return Remaining(startedAt, durationMinutes, now) == 0
}
