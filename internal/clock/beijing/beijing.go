// Package beijing renders platform timestamps in a fixed UTC offset.
package beijing

import (
	"fmt"
	"time"
)

// Layout is the rendered date-time format.
const Layout = "2006-01-02 15:04:05"

// millisThreshold separates second-based from millisecond-based timestamps.
const millisThreshold = 1e10

// DefaultOffsetHours is China Standard Time.
const DefaultOffsetHours = 8

// Location returns a fixed zone offsetHours east of UTC.
func Location(offsetHours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*60*60)
}

// Normalize converts a seconds-or-milliseconds timestamp to a UTC time.
func Normalize(ts int64) time.Time {
	if ts > millisThreshold {
		return time.UnixMilli(ts).Truncate(time.Second).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

// Format renders ts in loc using Layout. A nil loc uses DefaultOffsetHours.
func Format(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = Location(DefaultOffsetHours)
	}
	return Normalize(ts).In(loc).Format(Layout)
}
