// Package interval models half-open time ranges used for reservations.
package interval

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInterval indicates an interval whose start is not strictly before its end.
var ErrInvalidInterval = errors.New("interval: start must be before end")

// Interval is a half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// New validates and constructs an interval.
func New(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: %s >= %s", ErrInvalidInterval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

// FromDuration constructs an interval starting at start that lasts d.
func FromDuration(start time.Time, d time.Duration) (Interval, error) {
	if d <= 0 {
		return Interval{}, fmt.Errorf("%w: duration %s", ErrInvalidInterval, d)
	}
	return Interval{Start: start, End: start.Add(d)}, nil
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether the two intervals share any instant.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return Overlaps(i, other)
}

// Contains reports whether t falls inside [Start, End).
func (i Interval) Contains(t time.Time) bool {
	return Contains(i, t)
}

// Equal compares instants rather than locations.
func (i Interval) Equal(other Interval) bool {
	return i.Start.Equal(other.Start) && i.End.Equal(other.End)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// Overlaps reports whether a and b intersect.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Contains reports whether i.Start <= t < i.End.
func Contains(i Interval, t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}
