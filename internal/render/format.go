// Package render turns session state into text and HTML.
package render

import "fmt"

// FormatTime renders seconds as HH:MM:SS. Negative input renders as zero.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// FormatDuration renders an exam duration, e.g. "45 minutes", "2 hours",
// "1 hour 30 min".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}

	hours := minutes / 60
	mins := minutes % 60
	unit := "hour"
	if hours > 1 {
		unit = "hours"
	}
	if mins == 0 {
		return fmt.Sprintf("%d %s", hours, unit)
	}
	return fmt.Sprintf("%d %s %d min", hours, unit, mins)
}

// Timer display classes.
const (
	TimerDanger  = "danger"
	TimerWarning = "warning"
)

// TimerClass returns the urgency class for the remaining seconds.
func TimerClass(seconds int) string {
	switch {
	case seconds < 300:
		return TimerDanger
	case seconds < 600:
		return TimerWarning
	default:
		return ""
	}
}
