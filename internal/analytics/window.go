package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// searchLayout renders instants the way the order search syntax expects them.
const searchLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	// ErrInvalidDate is returned when an explicit start or end date cannot be parsed.
	ErrInvalidDate = errors.New("analytics: invalid date")
	// ErrInvalidWindow is returned when the resolved start falls after the end.
	ErrInvalidWindow = errors.New("analytics: start must not be after end")
)

// Preset names a relative date window.
type Preset string

const (
	PresetLast7     Preset = "last7"
	PresetLast30    Preset = "last30"
	PresetThisMonth Preset = "thisMonth"
	PresetLastMonth Preset = "lastMonth"
	PresetYTD       Preset = "ytd"
	PresetCustom    Preset = "custom"
)

// Window is an inclusive range of calendar days expressed as UTC instants.
type Window struct {
	Start time.Time
	End   time.Time
}

// ResolveWindow turns explicit dates or a preset into a concrete window. Explicit dates win
// when both are present; otherwise the preset is evaluated against now truncated to UTC midnight.
func ResolveWindow(now time.Time, preset Preset, start, end string) (Window, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	if start != "" && end != "" {
		s, err := time.ParseInLocation(dateLayout, start, time.UTC)
		if err != nil {
			return Window{}, fmt.Errorf("%w: start %q", ErrInvalidDate, start)
		}
		e, err := time.ParseInLocation(dateLayout, end, time.UTC)
		if err != nil {
			return Window{}, fmt.Errorf("%w: end %q", ErrInvalidDate, end)
		}
		if s.After(e) {
			return Window{}, ErrInvalidWindow
		}
		return dayRange(s, e), nil
	}

	today := truncateDay(now)
	switch preset {
	case PresetLast7:
		return dayRange(today.AddDate(0, 0, -6), today), nil
	case PresetThisMonth:
		return dayRange(startOfMonth(today), today), nil
	case PresetLastMonth:
		firstThis := startOfMonth(today)
		return dayRange(firstThis.AddDate(0, -1, 0), firstThis.AddDate(0, 0, -1)), nil
	case PresetYTD:
		return dayRange(time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), today), nil
	default:
		return dayRange(today.AddDate(0, 0, -29), today), nil
	}
}

// Days reports the number of calendar days covered by the window.
func (w Window) Days() int {
	first := truncateDay(w.Start)
	last := truncateDay(w.End)
	return int(last.Sub(first).Hours()/24) + 1
}

// Shift moves both ends of the window by the given calendar offset.
func (w Window) Shift(years, months, days int) Window {
	return dayRange(
		truncateDay(w.Start).AddDate(years, months, days),
		truncateDay(w.End).AddDate(years, months, days),
	)
}

// SearchQuery renders the processed_at range predicate understood by the order search.
func (w Window) SearchQuery() string {
	return fmt.Sprintf("processed_at:>='%s' processed_at:<='%s'",
		w.Start.UTC().Format(searchLayout), w.End.UTC().Format(searchLayout))
}

// Months lists the month keys (YYYY-MM) touched by the window in chronological order.
func (w Window) Months() []string {
	cur := startOfMonth(w.Start)
	last := startOfMonth(w.End)
	var keys []string
	for !cur.After(last) {
		keys = append(keys, cur.Format(monthKeyLayout))
		cur = cur.AddDate(0, 1, 0)
	}
	return keys
}

// StartDate returns the first day as YYYY-MM-DD.
func (w Window) StartDate() string { return w.Start.UTC().Format(dateLayout) }

// EndDate returns the last day as YYYY-MM-DD.
func (w Window) EndDate() string { return w.End.UTC().Format(dateLayout) }

// PreviousWindow returns the window a comparison mode measures against: the same dates one
// year earlier for yoy, and the equally long run of days right before Start for mom.
func PreviousWindow(w Window, mode CompareMode) Window {
	if mode == CompareYoY {
		return w.Shift(-1, 0, 0)
	}
	days := w.Days()
	prevEnd := truncateDay(w.Start).AddDate(0, 0, -1)
	return dayRange(prevEnd.AddDate(0, 0, -(days-1)), prevEnd)
}

func dayRange(first, last time.Time) Window {
	return Window{
		Start: truncateDay(first),
		End:   truncateDay(last).Add(24*time.Hour - time.Millisecond),
	}
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
