package interval

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.January, 1, hour, minute, 0, 0, time.UTC)
}

func TestNew(t *testing.T) {
	t.Run("accepts start before end", func(t *testing.T) {
		iv, err := New(at(10, 0), at(11, 30))
		require.NoError(t, err)
		assert.Equal(t, 90*time.Minute, iv.Duration())
	})

	t.Run("rejects equal endpoints", func(t *testing.T) {
		_, err := New(at(10, 0), at(10, 0))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInterval))
	})

	t.Run("rejects inverted endpoints", func(t *testing.T) {
		_, err := New(at(11, 0), at(10, 0))
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})
}

func TestFromDuration(t *testing.T) {
	iv, err := FromDuration(at(14, 0), 90*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, at(15, 30), iv.End)

	_, err = FromDuration(at(14, 0), 0)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	_, err = FromDuration(at(14, 0), -time.Minute)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestOverlaps(t *testing.T) {
	base := Interval{Start: at(10, 0), End: at(11, 0)}

	cases := []struct {
		name  string
		other Interval
		want  bool
	}{
		{"touching after", Interval{Start: at(11, 0), End: at(12, 0)}, false},
		{"touching before", Interval{Start: at(9, 0), End: at(10, 0)}, false},
		{"one minute overlap", Interval{Start: at(10, 59), End: at(12, 0)}, true},
		{"contained", Interval{Start: at(10, 15), End: at(10, 45)}, true},
		{"enclosing", Interval{Start: at(9, 0), End: at(12, 0)}, true},
		{"identical", base, true},
		{"disjoint", Interval{Start: at(13, 0), End: at(14, 0)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(base, tc.other))
			assert.Equal(t, tc.want, tc.other.Overlaps(base), "overlap must be symmetric")
		})
	}
}

func TestContains(t *testing.T) {
	iv := Interval{Start: at(10, 0), End: at(11, 30)}

	assert.True(t, iv.Contains(at(10, 0)), "start is inclusive")
	assert.True(t, iv.Contains(at(11, 29)))
	assert.False(t, iv.Contains(at(11, 30)), "end is exclusive")
	assert.False(t, iv.Contains(at(9, 59)))
}
