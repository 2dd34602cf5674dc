// Package util hosts small formatting helpers shared by the CLIs.
package util //nolint:revive // package name util hosts shared formatting helpers

import "time"

// FormatDuration formats d for display. Zero and negative durations render
// as "-"; longer ones are truncated to milliseconds.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}

// FormatSpan formats the time between start and end. A nil start renders
// as "-"; a nil end measures up to now.
func FormatSpan(start, end *time.Time, now time.Time) string {
	if start == nil {
		return "-"
	}
	stop := now
	if end != nil {
		stop = *end
	}
	return FormatDuration(stop.Sub(*start))
}
