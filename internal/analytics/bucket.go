package analytics

import (
	"regexp"
	"strings"
	"time"
)

// Granularity is the time unit orders are bucketed by.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

const (
	monthKeyLayout   = "2006-01"
	monthLabelLayout = "Jan 2006"
	dayLabelLayout   = "01/02/2006"
	weekKeyPrefix    = "W:"
)

var monthKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// ParseGranularity maps a query value onto a granularity, defaulting to day.
func ParseGranularity(raw string) Granularity {
	switch Granularity(strings.ToLower(strings.TrimSpace(raw))) {
	case GranularityWeek:
		return GranularityWeek
	case GranularityMonth:
		return GranularityMonth
	default:
		return GranularityDay
	}
}

// BucketRef identifies a bucket: Key sorts chronologically, Label is for display.
type BucketRef struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// BucketKey maps a timestamp onto its bucket for the granularity. Only the UTC calendar date
// of t is considered.
func BucketKey(t time.Time, g Granularity) BucketRef {
	day := truncateDay(t)
	switch g {
	case GranularityMonth:
		return MonthRef(day.Format(monthKeyLayout))
	case GranularityWeek:
		ws := startOfWeek(day)
		iso := ws.Format(dateLayout)
		return BucketRef{Key: weekKeyPrefix + iso, Label: "Week of " + iso}
	default:
		return BucketRef{Key: day.Format(dateLayout), Label: day.Format(dayLabelLayout)}
	}
}

// MonthRef builds the bucket reference for a YYYY-MM month key. Unparseable keys keep the
// key as their label.
func MonthRef(key string) BucketRef {
	m, err := time.ParseInLocation(monthKeyLayout, key, time.UTC)
	if err != nil {
		return BucketRef{Key: key, Label: key}
	}
	return BucketRef{Key: key, Label: m.Format(monthLabelLayout)}
}

// MonthKeyOf re-keys a day, week or month bucket key to its YYYY-MM month. Week buckets
// belong to the month their Monday falls in.
func MonthKeyOf(key string) (string, bool) {
	if monthKeyPattern.MatchString(key) {
		return key, true
	}
	trimmed := strings.TrimPrefix(key, weekKeyPrefix)
	if len(trimmed) < len(monthKeyLayout) {
		return "", false
	}
	candidate := trimmed[:len(monthKeyLayout)]
	if !monthKeyPattern.MatchString(candidate) {
		return "", false
	}
	return candidate, true
}

func startOfWeek(day time.Time) time.Time {
	diff := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -diff)
}
