package cmd

import (
	"fmt"
	"strings"
	"time"
)

// nextRunMessage describes when the next scheduled run starts, e.g.
// "1 Hour and 30 Minutes until the next run at 14:05".
func nextRunMessage(now time.Time, interval time.Duration) string {
	next := now.Add(interval)
	return fmt.Sprintf("%s until the next run at %s", humanDuration(interval), next.Format("15:04"))
}

func humanDuration(d time.Duration) string {
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)

	var parts []string
	if hours > 0 {
		parts = append(parts, plural(hours, "Hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "Minute"))
	}
	if len(parts) == 0 {
		return "Less than a Minute"
	}
	return strings.Join(parts, " and ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
