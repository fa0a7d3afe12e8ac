package recurrence

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/lab-portal/internal/interval"
)

func expandAll(e *Engine, p Pattern) ([]interval.Interval, error) {
	seq, err := e.Expand(p)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestEngine_Expand(t *testing.T) {
	t.Parallel()

	t.Run("monday and wednesday over two weeks", func(t *testing.T) {
		t.Parallel()
		engine := NewEngine(time.UTC)

		got, err := expandAll(engine, Pattern{
			Weekdays:    []time.Weekday{time.Monday, time.Wednesday},
			At:          TimeOfDay{Hour: 14},
			Duration:    90 * time.Minute,
			PeriodStart: date(2024, time.January, 1),
			PeriodEnd:   date(2024, time.January, 14),
		})
		require.NoError(t, err)
		require.Len(t, got, 4)

		wantStarts := []time.Time{
			time.Date(2024, time.January, 1, 14, 0, 0, 0, time.UTC),
			time.Date(2024, time.January, 3, 14, 0, 0, 0, time.UTC),
			time.Date(2024, time.January, 8, 14, 0, 0, 0, time.UTC),
			time.Date(2024, time.January, 10, 14, 0, 0, 0, time.UTC),
		}
		for i, iv := range got {
			assert.True(t, iv.Start.Equal(wantStarts[i]), "occurrence %d start %s", i, iv.Start)
			assert.True(t, iv.End.Equal(wantStarts[i].Add(90*time.Minute)), "occurrence %d end %s", i, iv.End)
		}
	})

	t.Run("includes the last day of the period", func(t *testing.T) {
		t.Parallel()
		engine := NewEngine(time.UTC)

		got, err := expandAll(engine, Pattern{
			Weekdays:    []time.Weekday{time.Sunday},
			At:          TimeOfDay{Hour: 20},
			Duration:    time.Hour,
			PeriodStart: date(2024, time.January, 1),
			PeriodEnd:   date(2024, time.January, 14),
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 14, got[1].Start.Day())
	})

	t.Run("reversed period yields nothing", func(t *testing.T) {
		t.Parallel()
		engine := NewEngine(time.UTC)

		got, err := expandAll(engine, Pattern{
			Weekdays:    []time.Weekday{time.Monday},
			At:          TimeOfDay{Hour: 8},
			Duration:    time.Hour,
			PeriodStart: date(2024, time.February, 1),
			PeriodEnd:   date(2024, time.January, 1),
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("empty weekday set yields nothing", func(t *testing.T) {
		t.Parallel()
		engine := NewEngine(time.UTC)

		got, err := expandAll(engine, Pattern{
			At:          TimeOfDay{Hour: 8},
			Duration:    time.Hour,
			PeriodStart: date(2024, time.January, 1),
			PeriodEnd:   date(2024, time.March, 1),
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("rejects non-positive duration", func(t *testing.T) {
		t.Parallel()
		engine := NewEngine(nil)

		_, err := engine.Expand(Pattern{
			Weekdays:    []time.Weekday{time.Monday},
			At:          TimeOfDay{Hour: 8},
			PeriodStart: date(2024, time.January, 1),
			PeriodEnd:   date(2024, time.January, 7),
		})
		assert.True(t, errors.Is(err, ErrInvalidDuration))
	})

	t.Run("sequence is restartable", func(t *testing.T) {
		t.Parallel()
		engine := NewEngine(time.UTC)

		seq, err := engine.Expand(Pattern{
			Weekdays:    []time.Weekday{time.Tuesday, time.Thursday},
			At:          TimeOfDay{Hour: 7, Minute: 30},
			Duration:    90 * time.Minute,
			PeriodStart: date(2024, time.January, 1),
			PeriodEnd:   date(2024, time.January, 31),
		})
		require.NoError(t, err)

		count := func() int {
			n := 0
			for range seq {
				n++
			}
			return n
		}
		first := count()
		assert.Equal(t, 9, first)
		assert.Equal(t, first, count())
	})

	t.Run("stops early when the consumer breaks", func(t *testing.T) {
		t.Parallel()
		engine := NewEngine(time.UTC)

		seq, err := engine.Expand(Pattern{
			Weekdays:    []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			At:          TimeOfDay{Hour: 9},
			Duration:    time.Hour,
			PeriodStart: date(2024, time.January, 1),
			PeriodEnd:   date(2024, time.December, 31),
		})
		require.NoError(t, err)

		n := 0
		for range seq {
			n++
			if n == 3 {
				break
			}
		}
		assert.Equal(t, 3, n)
	})

	t.Run("keeps wall clock time across daylight saving change", func(t *testing.T) {
		t.Parallel()
		ny, err := time.LoadLocation("America/New_York")
		if err != nil {
			t.Skipf("tzdata unavailable: %v", err)
		}
		engine := NewEngine(ny)

		got, err := expandAll(engine, Pattern{
			Weekdays:    []time.Weekday{time.Friday},
			At:          TimeOfDay{Hour: 10},
			Duration:    90 * time.Minute,
			PeriodStart: date(2024, time.March, 1),
			PeriodEnd:   date(2024, time.March, 15),
		})
		require.NoError(t, err)
		require.Len(t, got, 3)
		for _, iv := range got {
			assert.Equal(t, 10, iv.Start.In(ny).Hour())
			assert.Equal(t, 90*time.Minute, iv.Duration())
		}
	})
}

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in   string
		want TimeOfDay
	}{
		{"2:00 PM", TimeOfDay{Hour: 14}},
		{"11:30am", TimeOfDay{Hour: 11, Minute: 30}},
		{"12:00 PM", TimeOfDay{Hour: 12}},
		{"12:15 AM", TimeOfDay{Hour: 0, Minute: 15}},
		{" 7:05 pm ", TimeOfDay{Hour: 19, Minute: 5}},
	}
	for _, tc := range cases {
		got, err := ParseTimeOfDay(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "14:00", "noon", "13:00 PM", "0:30 AM", "9:75 AM", "9 AM"} {
		_, err := ParseTimeOfDay(bad)
		var mErr *MalformedTimeError
		assert.True(t, errors.As(err, &mErr), "expected MalformedTimeError for %q, got %v", bad, err)
	}
}

func TestParseWeekdayCodes(t *testing.T) {
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, ParseWeekdayCodes("135"))
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, ParseWeekdayCodes("76"))
	assert.Equal(t, []time.Weekday{time.Tuesday}, ParseWeekdayCodes("2 2,9"))
	assert.Empty(t, ParseWeekdayCodes("0"))
	assert.Empty(t, ParseWeekdayCodes(""))
}
