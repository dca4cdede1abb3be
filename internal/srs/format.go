package srs

import (
	"fmt"
	"math"
)

// FormatInterval renders an interval in minutes the way review buttons show it:
// minutes below an hour, hours below a day, days otherwise.
func FormatInterval(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", max(1, minutes))
	}
	hours := float64(minutes) / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", int(math.Round(hours)))
	}
	return fmt.Sprintf("%dd", int(math.Round(hours/24)))
}

// FormatCardInterval is FormatInterval for deck listings, where an interval of
// zero marks a card that has never been reviewed.
func FormatCardInterval(minutes int) string {
	if minutes < 1 {
		return "New"
	}
	return FormatInterval(minutes)
}
