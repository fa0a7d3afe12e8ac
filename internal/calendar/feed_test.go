package calendar

import (
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/lab-portal/internal/interval"
)

func TestRender(t *testing.T) {
	start := time.Date(2024, time.January, 8, 14, 0, 0, 0, time.UTC)
	entries := []Entry{
		{
			UID:      "res-1",
			Summary:  "Redes I",
			Location: "Laboratorio de Redes",
			Category: "Clase",
			Interval: interval.Interval{Start: start, End: start.Add(90 * time.Minute)},
		},
		{
			UID:       "res-2",
			Summary:   "Práctica libre",
			Organizer: "ana@example.edu",
			Interval:  interval.Interval{Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour)},
		},
	}

	out := Render("Laboratorio de Redes", entries, start.Add(-24*time.Hour))
	require.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR"))

	parsed, err := ics.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)

	events := parsed.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "res-1", events[0].Id())

	gotStart, err := events[0].GetStartAt()
	require.NoError(t, err)
	assert.True(t, gotStart.Equal(start))
	gotEnd, err := events[0].GetEndAt()
	require.NoError(t, err)
	assert.True(t, gotEnd.Equal(start.Add(90*time.Minute)))

	summary := events[1].GetProperty(ics.ComponentPropertySummary)
	require.NotNil(t, summary)
	assert.Equal(t, "Práctica libre", summary.Value)
}

func TestRenderEmpty(t *testing.T) {
	out := Render("", nil, time.Now())
	parsed, err := ics.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	assert.Empty(t, parsed.Events())
}
