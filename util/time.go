package util

import (
	"fmt"
	"time"
)

// Layout used for timestamps shown to administrators.
const DisplayLayout = "02.01.2006 15:04"

// Formats t in the fixed display zone offset from UTC. A nil time renders as "never".
func FormatDisplayTime(t *time.Time, offset time.Duration) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	zone := time.FixedZone(zoneName(offset), int(offset.Seconds()))
	return t.In(zone).Format(DisplayLayout)
}

func zoneName(offset time.Duration) string {
	if offset == 0 {
		return "UTC"
	}
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := int(offset / time.Hour)
	minutes := int((offset % time.Hour) / time.Minute)
	if minutes != 0 {
		return fmt.Sprintf("UTC%s%d:%02d", sign, hours, minutes)
	}
	return fmt.Sprintf("UTC%s%d", sign, hours)
}

// Whole seconds in d, rounded up, so that any positive remainder shows as at least one second.
func CeilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
