package httpapi

import (
	"strconv"
	"strings"
	"time"
)

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ParseStartTime reads a device call-start time. Accepted forms are epoch
// milliseconds, epoch seconds, RFC 3339, and zone-less local layouts
// interpreted in loc. An empty value yields nil.
func ParseStartTime(v string, loc *time.Location) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		var t time.Time
		if n > 1e11 {
			t = time.UnixMilli(n)
		} else {
			t = time.Unix(n, 0)
		}
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	var lastErr error
	for _, layout := range localLayouts {
		t, err := time.ParseInLocation(layout, v, loc)
		if err == nil {
			t = t.UTC()
			return &t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// parseBound reads a report range bound. A bare date used as the upper
// bound covers the whole day.
func parseBound(v string, loc *time.Location, def time.Time, upper bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		if upper {
			return def.AddDate(0, 0, 1), nil
		}
		return def, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", v, loc); err == nil {
		if upper {
			return t.AddDate(0, 0, 1), nil
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
