package recurrence

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return &MalformedTimeError{Input: t.String(), Reason: "out of range"}
	}
	return nil
}

// MalformedTimeError reports a time-of-day string that cannot be parsed.
type MalformedTimeError struct {
	Input  string
	Reason string
}

func (e *MalformedTimeError) Error() string {
	return fmt.Sprintf("recurrence: malformed time %q: %s", e.Input, e.Reason)
}

var meridiemTime = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s*(AM|PM)$`)

// ParseTimeOfDay parses a 12-hour clock value such as "2:00 PM" or "11:30am".
// 12 AM maps to hour 0 and 12 PM stays at hour 12.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	trimmed := strings.TrimSpace(value)
	matches := meridiemTime.FindStringSubmatch(trimmed)
	if matches == nil {
		return TimeOfDay{}, &MalformedTimeError{Input: value, Reason: `expected "H:MM AM" or "H:MM PM"`}
	}

	hour, _ := strconv.Atoi(matches[1])
	minute, _ := strconv.Atoi(matches[2])
	if hour < 1 || hour > 12 {
		return TimeOfDay{}, &MalformedTimeError{Input: value, Reason: "hour must be between 1 and 12"}
	}
	if minute > 59 {
		return TimeOfDay{}, &MalformedTimeError{Input: value, Reason: "minute must be between 0 and 59"}
	}

	switch strings.ToUpper(matches[3]) {
	case "PM":
		if hour != 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// ParseWeekdayCodes reads a compact weekday code where each digit 1..7 names a
// day (1 = Monday, 7 = Sunday). Other characters are ignored. The result is
// de-duplicated and ordered Monday first.
func ParseWeekdayCodes(code string) []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for _, r := range code {
		if r < '1' || r > '7' {
			continue
		}
		day := time.Weekday(int(r-'0') % 7)
		if !slices.Contains(days, day) {
			days = append(days, day)
		}
	}
	slices.SortFunc(days, func(a, b time.Weekday) int {
		return mondayIndex(a) - mondayIndex(b)
	})
	return days
}

func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}
