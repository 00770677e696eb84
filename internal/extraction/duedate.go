package extraction

import (
	"strings"
	"time"
)

// defaultDueHour is the time of day given to date-only due dates.
const defaultDueHour = 17

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDueDate converts a model-provided due date into a time.
//
// "YYYY-MM-DD" becomes 17:00 on that day in loc. Timestamps with an offset
// keep it; timestamps without one are read in loc. Anything else yields
// false.
func ParseDueDate(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}

	if len(value) == len(time.DateOnly) {
		day, err := time.ParseInLocation(time.DateOnly, value, loc)
		if err != nil {
			return time.Time{}, false
		}
		return time.Date(day.Year(), day.Month(), day.Day(), defaultDueHour, 0, 0, 0, loc), true
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
