package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveWindowExplicitDates(t *testing.T) {
	w, err := ResolveWindow(time.Now(), PresetLast7, "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), w.Start)
	require.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC), w.End)
	require.Equal(t, 31, w.Days())
	require.Equal(t, "2024-01-01", w.StartDate())
	require.Equal(t, "2024-01-31", w.EndDate())
}

func TestResolveWindowRejectsBadInput(t *testing.T) {
	_, err := ResolveWindow(time.Now(), "", "2024-13-01", "2024-01-31")
	require.True(t, errors.Is(err, ErrInvalidDate))

	_, err = ResolveWindow(time.Now(), "", "2024-02-01", "2024-01-31")
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestResolveWindowPresets(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)
	cases := []struct {
		preset     Preset
		start, end string
	}{
		{PresetLast7, "2024-03-09", "2024-03-15"},
		{PresetLast30, "2024-02-15", "2024-03-15"},
		{PresetThisMonth, "2024-03-01", "2024-03-15"},
		{PresetLastMonth, "2024-02-01", "2024-02-29"},
		{PresetYTD, "2024-01-01", "2024-03-15"},
		{"", "2024-02-15", "2024-03-15"},
	}
	for _, tc := range cases {
		t.Run(string(tc.preset), func(t *testing.T) {
			w, err := ResolveWindow(now, tc.preset, "", "")
			require.NoError(t, err)
			require.Equal(t, tc.start, w.StartDate())
			require.Equal(t, tc.end, w.EndDate())
		})
	}
}

func TestResolveWindowNeedsBothDates(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	w, err := ResolveWindow(now, PresetLast7, "2024-01-01", "")
	require.NoError(t, err)
	require.Equal(t, "2024-03-09", w.StartDate())
}

func TestPreviousWindow(t *testing.T) {
	w := window("2024-03-01", "2024-03-31")

	mom := PreviousWindow(w, CompareMoM)
	require.Equal(t, "2024-01-30", mom.StartDate())
	require.Equal(t, "2024-02-29", mom.EndDate())
	require.Equal(t, w.Days(), mom.Days())

	yoy := PreviousWindow(w, CompareYoY)
	require.Equal(t, "2023-03-01", yoy.StartDate())
	require.Equal(t, "2023-03-31", yoy.EndDate())
}

func TestWindowSearchQuery(t *testing.T) {
	w := window("2024-01-01", "2024-01-31")
	require.Equal(t, "processed_at:>='2024-01-01T00:00:00.000Z' processed_at:<='2024-01-31T23:59:59.999Z'", w.SearchQuery())
}

func TestWindowMonths(t *testing.T) {
	w := window("2023-11-20", "2024-02-03")
	require.Equal(t, []string{"2023-11", "2023-12", "2024-01", "2024-02"}, w.Months())
	require.Equal(t, at("2024-02-03T23:59:59.999Z"), w.End)
}
