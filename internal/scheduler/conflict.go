package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/lab-portal/internal/interval"
)

// Booking is a reservation of a single resource for an interval.
type Booking struct {
	ID         string
	ResourceID string
	Interval   interval.Interval
}

// ConflictError reports that a candidate booking overlaps an existing one.
type ConflictError struct {
	Candidate Booking
	Existing  Booking
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scheduler: slot %s overlaps reservation %s %s", e.Candidate.Interval, e.Existing.ID, e.Existing.Interval)
}

// PastSlotError reports a candidate booking that starts before now.
type PastSlotError struct {
	Candidate Booking
	Now       time.Time
}

func (e *PastSlotError) Error() string {
	return fmt.Sprintf("scheduler: slot %s starts before %s", e.Candidate.Interval, e.Now.Format(time.RFC3339))
}

// RejectPast returns a PastSlotError when the candidate starts before now.
func RejectPast(candidate Booking, now time.Time) error {
	if candidate.Interval.Start.Before(now) {
		return &PastSlotError{Candidate: candidate, Now: now}
	}
	return nil
}

// CheckConflict decides whether candidate may be booked.
//
// Past slots are rejected before any overlap is considered. Otherwise the
// first existing booking of the same resource that overlaps the candidate is
// reported as a ConflictError. Bookings with an empty ResourceID are treated
// as belonging to the candidate's resource.
func CheckConflict(candidate Booking, existing []Booking, now time.Time) error {
	if err := RejectPast(candidate, now); err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID != "" && other.ID == candidate.ID {
			continue
		}
		if !sameResource(candidate, other) {
			continue
		}
		if interval.Overlaps(candidate.Interval, other.Interval) {
			return &ConflictError{Candidate: candidate, Existing: other}
		}
	}
	return nil
}

// Conflict details a pair of bookings of the same resource that overlap.
type Conflict struct {
	First  Booking
	Second Booking
}

// DetectOverlaps reports every overlapping pair among bookings, grouped by
// resource. Pairs are ordered by the start of the earlier booking.
func DetectOverlaps(bookings []Booking) []Conflict {
	if len(bookings) < 2 {
		return nil
	}

	ordered := make([]Booking, len(bookings))
	copy(ordered, bookings)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ResourceID != ordered[j].ResourceID {
			return ordered[i].ResourceID < ordered[j].ResourceID
		}
		if ordered[i].Interval.Start.Equal(ordered[j].Interval.Start) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Interval.Start.Before(ordered[j].Interval.Start)
	})

	var conflicts []Conflict
	for i := range ordered {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].ResourceID != ordered[i].ResourceID {
				break
			}
			// sorted by start: nothing later can overlap once a start passes our end
			if !ordered[j].Interval.Start.Before(ordered[i].Interval.End) {
				break
			}
			conflicts = append(conflicts, Conflict{First: ordered[i], Second: ordered[j]})
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].First.Interval.Start.Before(conflicts[j].First.Interval.Start)
	})
	return conflicts
}

func sameResource(a, b Booking) bool {
	return a.ResourceID == "" || b.ResourceID == "" || a.ResourceID == b.ResourceID
}
