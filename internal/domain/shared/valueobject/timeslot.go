package valueobject

import (
	"errors"
	"time"
)

// TimeSlot is a value object representing an interval of allotted time
// starting at a known instant. It is immutable - extending returns a new
// TimeSlot.
type TimeSlot struct {
	start    time.Time
	allotted time.Duration
}

// NewTimeSlot creates a TimeSlot starting at start with the given allotted
// duration. The duration must be positive.
func NewTimeSlot(start time.Time, allotted time.Duration) (TimeSlot, error) {
	if start.IsZero() {
		return TimeSlot{}, errors.New("start time is required")
	}
	if allotted <= 0 {
		return TimeSlot{}, errors.New("allotted duration must be positive")
	}
	return TimeSlot{start: start.UTC(), allotted: allotted}, nil
}

// NewTimeSlotMinutes creates a TimeSlot from an allotted number of minutes
func NewTimeSlotMinutes(start time.Time, minutes int) (TimeSlot, error) {
	return NewTimeSlot(start, time.Duration(minutes)*time.Minute)
}

// Start returns the start of the slot
func (s TimeSlot) Start() time.Time {
	return s.start
}

// Allotted returns the allotted duration
func (s TimeSlot) Allotted() time.Duration {
	return s.allotted
}

// AllottedMinutes returns the allotted duration in whole minutes
func (s TimeSlot) AllottedMinutes() int {
	return int(s.allotted / time.Minute)
}

// End returns the instant at which the allotted time runs out
func (s TimeSlot) End() time.Time {
	return s.start.Add(s.allotted)
}

// Extend returns a new TimeSlot with additional time appended
func (s TimeSlot) Extend(additional time.Duration) (TimeSlot, error) {
	if additional <= 0 {
		return TimeSlot{}, errors.New("additional duration must be positive")
	}
	return TimeSlot{start: s.start, allotted: s.allotted + additional}, nil
}

// Contains reports whether t falls within the slot
func (s TimeSlot) Contains(t time.Time) bool {
	return !t.Before(s.start) && t.Before(s.End())
}

// ExpiredAt reports whether the allotted time has run out at instant now
func (s TimeSlot) ExpiredAt(now time.Time) bool {
	return !s.End().After(now)
}

// Remaining returns the time left at instant now, or zero if expired
func (s TimeSlot) Remaining(now time.Time) time.Duration {
	remaining := s.End().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Elapsed returns the time consumed between the slot start and now.
// It is never negative.
func (s TimeSlot) Elapsed(now time.Time) time.Duration {
	elapsed := now.Sub(s.start)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
