package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"confprog/internal/model"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"9:00", 540, true},
		{" 14:30 ", 870, true},
		{"24:00", 1440, true},
		{"0:05", 5, true},
		{"25:00", 0, false},
		{"24:01", 0, false},
		{"24:59", 0, false},
		{"9:60", 0, false},
		{"9", 0, false},
		{"", 0, false},
		{"ab:cd", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseClock(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseSessionTime(t *testing.T) {
	r, ok := ParseSessionTime("9:00–10:30")
	assert.True(t, ok)
	assert.Equal(t, Range{Start: 540, End: 630}, r)

	r, ok = ParseSessionTime("19:00")
	assert.True(t, ok)
	assert.Equal(t, Range{Start: 1140, End: 1140}, r)

	_, ok = ParseSessionTime("tba")
	assert.False(t, ok)

	assert.Equal(t, 0, StartMinutes("tba"))
	assert.Equal(t, 660, StartMinutes("11:00–12:30"))
}

func TestParseSlot(t *testing.T) {
	sl, ok := ParseSlot("ab 18:00")
	assert.True(t, ok)
	assert.True(t, sl.Open)
	assert.Equal(t, 1080, sl.Start)

	sl, ok = ParseSlot("9:00–12:30")
	assert.True(t, ok)
	assert.False(t, sl.Open)
	assert.Equal(t, Range{Start: 540, End: 750}, sl.Range)

	_, ok = ParseSlot("9:00-12:30")
	assert.False(t, ok, "ascii hyphen is not a range separator")
}

func TestMatcherOverlap(t *testing.T) {
	m := NewMatcher([]string{"2026-02-24"})
	day := "2026-02-25"

	assert.True(t, m.Matches(model.Session{Time: "11:30–13:00"}, "11:00–12:30", day))
	assert.False(t, m.Matches(model.Session{Time: "9:00–10:30"}, "11:00–12:30", day))
	assert.False(t, m.Matches(model.Session{Time: "12:30–14:00"}, "11:00–12:30", day), "touching ranges do not overlap")
	assert.True(t, m.Matches(model.Session{Time: "19:00"}, "ab 18:00", day))
	assert.False(t, m.Matches(model.Session{Time: "17:00"}, "ab 18:00", day))
}

func TestMatcherExactDay(t *testing.T) {
	m := NewMatcher([]string{"2026-02-24"})
	day := "2026-02-24"

	assert.True(t, m.IsExactDay(day))
	assert.False(t, m.Matches(model.Session{Time: "9:00–17:30"}, "9:00–12:30", day))
	assert.True(t, m.Matches(model.Session{Time: "9:00–12:30"}, "9:00–12:30", day))
	assert.True(t, m.Matches(model.Session{Time: "9:00–17:30"}, "9:00–17:30", day))
	assert.True(t, m.Matches(model.Session{Time: "18:30"}, "ab 18:00", day), "open slots are not exact")

	// Same pair on a non-exact day overlaps.
	assert.True(t, m.Matches(model.Session{Time: "9:00–17:30"}, "9:00–12:30", "2026-02-25"))
}

func TestMatcherDegenerateInput(t *testing.T) {
	m := NewMatcher(nil)

	assert.True(t, m.Matches(model.Session{Time: "garbage"}, "", "2026-02-25"), "no slot selects everything")
	assert.False(t, m.Matches(model.Session{Time: "garbage"}, "11:00–12:30", "2026-02-25"))
	assert.False(t, m.Matches(model.Session{Time: "11:00–12:30"}, "nonsense", "2026-02-25"))
}
