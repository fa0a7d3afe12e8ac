// Package calendar renders lab reservations as an iCalendar feed.
package calendar

import (
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/example/lab-portal/internal/interval"
)

const productID = "-//lab-portal//reservations//ES"

// Entry is one reservation in a feed.
type Entry struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Category    string
	Organizer   string
	Interval    interval.Interval
}

// Render serialises entries into an iCalendar document named name.
// stamp is written as DTSTAMP on every event.
func Render(name string, entries []Entry, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, entry := range entries {
		event := cal.AddEvent(entry.UID)
		event.SetDtStampTime(stamp.UTC())
		event.SetStartAt(entry.Interval.Start.UTC())
		event.SetEndAt(entry.Interval.End.UTC())
		event.SetSummary(entry.Summary)
		if entry.Description != "" {
			event.SetDescription(entry.Description)
		}
		if entry.Location != "" {
			event.SetLocation(entry.Location)
		}
		if entry.Category != "" {
			event.SetProperty(ics.ComponentPropertyCategories, entry.Category)
		}
		if entry.Organizer != "" {
			event.SetOrganizer("mailto:" + entry.Organizer)
		}
		event.SetStatus(ics.ObjectStatusConfirmed)
	}

	return cal.Serialize()
}
