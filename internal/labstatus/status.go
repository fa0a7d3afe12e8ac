// Package labstatus derives the live status shown for a laboratory.
package labstatus

import (
	"time"

	"github.com/example/lab-portal/internal/interval"
)

// Lifecycle is the administrator controlled state of a lab.
type Lifecycle string

const (
	LifecycleAvailable        Lifecycle = "available"
	LifecycleUnderMaintenance Lifecycle = "under_maintenance"
)

// Valid reports whether l is a known lifecycle value.
func (l Lifecycle) Valid() bool {
	return l == LifecycleAvailable || l == LifecycleUnderMaintenance
}

// Status is the derived status of a lab at an instant.
type Status string

const (
	StatusAvailable        Status = "available"
	StatusOccupied         Status = "occupied"
	StatusUnderMaintenance Status = "under_maintenance"
)

// Resolve returns the status of a lab at now.
//
// Maintenance takes precedence over any reservation. Otherwise the lab is
// occupied when one of reservations contains now.
func Resolve(lifecycle Lifecycle, reservations []interval.Interval, now time.Time) Status {
	if lifecycle == LifecycleUnderMaintenance {
		return StatusUnderMaintenance
	}
	for _, r := range reservations {
		if r.Contains(now) {
			return StatusOccupied
		}
	}
	return StatusAvailable
}
