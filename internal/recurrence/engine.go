package recurrence

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/lab-portal/internal/interval"
)

// ErrInvalidDuration indicates the occurrence duration is not positive.
var ErrInvalidDuration = errors.New("recurrence: duration must be positive")

// Pattern describes a weekly class slot repeated over a closed date range.
//
// PeriodStart and PeriodEnd are read as calendar dates; their clock time and
// location are ignored.
type Pattern struct {
	Weekdays    []time.Weekday
	At          TimeOfDay
	Duration    time.Duration
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Engine expands recurrence patterns into concrete intervals.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that anchors occurrences to loc.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location returns the zone occurrences are anchored to.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// Expand returns the occurrences of p in ascending order.
//
// The sequence is lazy and may be ranged over any number of times. Each
// occurrence starts at the pattern's wall-clock time on a matching date, so
// the local start time is preserved across daylight saving changes.
// An empty weekday set or a reversed period yields an empty sequence.
func (e *Engine) Expand(p Pattern) (iter.Seq[interval.Interval], error) {
	if p.Duration <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidDuration, p.Duration)
	}
	if err := p.At.validate(); err != nil {
		return nil, err
	}

	loc := e.Location()
	first := dateAt(p.PeriodStart, p.At, loc)
	last := dateAt(p.PeriodEnd, TimeOfDay{Hour: 23, Minute: 59}, loc).Add(59 * time.Second)

	weekdays := toRRuleWeekdays(p.Weekdays)
	if len(weekdays) == 0 || last.Before(first) {
		return func(func(interval.Interval) bool) {}, nil
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.DAILY,
		Dtstart:   first,
		Until:     last,
		Byweekday: weekdays,
	})
	if err != nil {
		return nil, fmt.Errorf("recurrence: build rule: %w", err)
	}

	return func(yield func(interval.Interval) bool) {
		next := rule.Iterator()
		for {
			start, ok := next()
			if !ok {
				return
			}
			if !yield(interval.Interval{Start: start, End: start.Add(p.Duration)}) {
				return
			}
		}
	}, nil
}

func dateAt(date time.Time, at TimeOfDay, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, at.Hour, at.Minute, 0, 0, loc)
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

func toRRuleWeekdays(days []time.Weekday) []rrule.Weekday {
	seen := make(map[time.Weekday]struct{}, len(days))
	out := make([]rrule.Weekday, 0, len(days))
	for _, day := range days {
		wd, ok := rruleWeekdays[day]
		if !ok {
			continue
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, wd)
	}
	return out
}
