package metrics

import (
	"strings"
	"time"
)

// Named history windows
const (
	WindowHour    = "1h"
	WindowDay     = "24h"
	WindowWeek    = "7d"
	DefaultWindow = WindowHour
)

var windows = map[string]time.Duration{
	WindowHour: time.Hour,
	WindowDay:  24 * time.Hour,
	WindowWeek: 7 * 24 * time.Hour,
}

// ResolveWindow maps a window name to its span. Unknown names resolve to one hour.
func ResolveWindow(name string) time.Duration {
	if d, ok := windows[strings.TrimSpace(name)]; ok {
		return d
	}
	return windows[DefaultWindow]
}
