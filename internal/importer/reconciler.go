// Package importer turns the registrar's academic load sheet into scheduled
// class drafts ready to be stored as one batch.
package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/lab-portal/internal/interval"
	"github.com/example/lab-portal/internal/recurrence"
	"github.com/example/lab-portal/internal/scheduler"
)

// DefaultSlot is the length of a class meeting.
const DefaultSlot = 90 * time.Minute

var draftNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:lab-portal:import-draft"))

// Resource is a lab known to the live directory.
type Resource struct {
	ID   string
	Name string
}

// Period is the closed date range a semester covers.
type Period struct {
	Start time.Time
	End   time.Time
}

// ClassInfo is the class metadata carried by every generated draft.
type ClassInfo struct {
	Faculty        string
	Career         string
	InstructorID   string
	InstructorName string
	Section        string
	Enrolled       int
}

// Draft is one scheduled class meeting awaiting commit.
//
// Key is derived from the lab, interval, subject and section, so submitting
// the same sheet twice yields the same keys.
type Draft struct {
	Key          string
	Row          int
	ResourceCode string
	LabID        string
	LabName      string
	Subject      string
	Interval     interval.Interval
	Class        ClassInfo
}

// Collision reports two drafts in the same batch that overlap on one lab.
type Collision struct {
	First  Draft
	Second Draft
}

// Result is the outcome of reconciling a sheet.
type Result struct {
	MappingVersion string
	Drafts         []Draft
	Failures       []RowFailure
	Collisions     []Collision
	Duplicates     int
}

// Reconciler maps sheet rows onto labs and expands them over a period.
type Reconciler struct {
	mapping Mapping
	engine  *recurrence.Engine
	slot    time.Duration
}

// NewReconciler constructs a Reconciler. A non-positive slot falls back to DefaultSlot.
func NewReconciler(mapping Mapping, engine *recurrence.Engine, slot time.Duration) *Reconciler {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if slot <= 0 {
		slot = DefaultSlot
	}
	return &Reconciler{mapping: mapping, engine: engine, slot: slot}
}

// Reconcile processes every row independently. A row that cannot be mapped,
// resolved, or parsed is reported in Failures and contributes no drafts;
// processing always continues with the next row.
func (r *Reconciler) Reconcile(rows []Row, directory []Resource, period Period) Result {
	labsByName := make(map[string]Resource, len(directory))
	for _, res := range directory {
		key := strings.ToLower(strings.TrimSpace(res.Name))
		if _, dup := labsByName[key]; !dup {
			labsByName[key] = res
		}
	}

	result := Result{MappingVersion: r.mapping.Codes.Version}
	seen := make(map[string]struct{})

	for _, row := range rows {
		if row.blank() {
			continue
		}
		drafts, err := r.reconcileRow(row, labsByName, period)
		if err != nil {
			result.Failures = append(result.Failures, RowFailure{Row: row.Number, Code: row.ResourceCode, Err: err})
			continue
		}
		for _, d := range drafts {
			if _, dup := seen[d.Key]; dup {
				result.Duplicates++
				continue
			}
			seen[d.Key] = struct{}{}
			result.Drafts = append(result.Drafts, d)
		}
	}

	result.Collisions = collisions(result.Drafts)
	return result
}

func (r *Reconciler) reconcileRow(row Row, labsByName map[string]Resource, period Period) ([]Draft, error) {
	code := strings.TrimSpace(row.ResourceCode)
	if code == "" {
		return nil, &MalformedRowError{Field: ColumnResourceCode, Reason: "is required"}
	}

	labName, ok := r.mapping.Codes.Lookup(code)
	if !ok {
		return nil, &UnknownResourceCodeError{Code: code}
	}

	lab, ok := labsByName[strings.ToLower(labName)]
	if !ok {
		return nil, &UnresolvedResourceError{Code: code, LabName: labName}
	}

	subject := strings.TrimSpace(row.Subject)
	if subject == "" {
		return nil, &MalformedRowError{Field: ColumnSubject, Reason: "is required"}
	}
	if strings.TrimSpace(row.Days) == "" {
		return nil, &MalformedRowError{Field: ColumnDays, Reason: "is required"}
	}
	weekdays := recurrence.ParseWeekdayCodes(row.Days)
	if len(weekdays) == 0 {
		return nil, &MalformedRowError{Field: ColumnDays, Reason: fmt.Sprintf("no weekday in %q", row.Days)}
	}
	if strings.TrimSpace(row.Time) == "" {
		return nil, &MalformedRowError{Field: ColumnTime, Reason: "is required"}
	}
	at, err := recurrence.ParseTimeOfDay(row.Time)
	if err != nil {
		return nil, &MalformedRowError{Field: ColumnTime, Reason: "unreadable time", Err: err}
	}
	enrolled, err := parseEnrolled(row.Enrolled)
	if err != nil {
		return nil, &MalformedRowError{Field: ColumnEnrolled, Reason: "not a whole non-negative number", Err: err}
	}

	occurrences, err := r.engine.Expand(recurrence.Pattern{
		Weekdays:    weekdays,
		At:          at,
		Duration:    r.slot,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
	})
	if err != nil {
		return nil, &MalformedRowError{Field: ColumnTime, Reason: "cannot expand", Err: err}
	}

	class := ClassInfo{
		Faculty:        r.mapping.Faculties.Infer(subject),
		Career:         strings.TrimSpace(row.Career),
		InstructorID:   strings.TrimSpace(row.InstructorID),
		InstructorName: strings.TrimSpace(row.InstructorName),
		Section:        strings.TrimSpace(row.Section),
		Enrolled:       enrolled,
	}

	var drafts []Draft
	for iv := range occurrences {
		drafts = append(drafts, Draft{
			Key:          draftKey(lab.ID, iv, subject, class.Section),
			Row:          row.Number,
			ResourceCode: code,
			LabID:        lab.ID,
			LabName:      lab.Name,
			Subject:      subject,
			Interval:     iv,
			Class:        class,
		})
	}
	return drafts, nil
}

func parseEnrolled(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	var n int
	if i, err := strconv.Atoi(value); err == nil {
		n = i
	} else {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, err
		}
		// Spreadsheets store counts as floats; only whole values are accepted.
		if f < 0 {
			return 0, fmt.Errorf("%q is negative", value)
		}
		if f != math.Trunc(f) || f > math.MaxInt32 {
			return 0, fmt.Errorf("%q is not a whole number", value)
		}
		n = int(f)
	}
	if n < 0 {
		return 0, fmt.Errorf("%q is negative", value)
	}
	return n, nil
}

func draftKey(labID string, iv interval.Interval, subject, section string) string {
	name := strings.Join([]string{
		labID,
		iv.Start.UTC().Format(time.RFC3339),
		iv.End.UTC().Format(time.RFC3339),
		strings.ToLower(subject),
		strings.ToLower(section),
	}, "|")
	return uuid.NewSHA1(draftNamespace, []byte(name)).String()
}

func collisions(drafts []Draft) []Collision {
	if len(drafts) < 2 {
		return nil
	}
	byKey := make(map[string]Draft, len(drafts))
	bookings := make([]scheduler.Booking, 0, len(drafts))
	for _, d := range drafts {
		byKey[d.Key] = d
		bookings = append(bookings, scheduler.Booking{ID: d.Key, ResourceID: d.LabID, Interval: d.Interval})
	}

	conflicts := scheduler.DetectOverlaps(bookings)
	if len(conflicts) == 0 {
		return nil
	}
	out := make([]Collision, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, Collision{First: byKey[c.First.ID], Second: byKey[c.Second.ID]})
	}
	return out
}
