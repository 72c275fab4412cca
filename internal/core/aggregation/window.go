package aggregation

import (
	"fmt"
	"time"
)

const (
	// bucketsPerWindow is how many buckets a summary window is split into.
	bucketsPerWindow = 6
	// minBucketMinutes is the narrowest bucket a summary ever uses.
	minBucketMinutes = 5
)

// Window is a closed time range [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowEndingAt returns the window of the given length that ends at reference.
func WindowEndingAt(reference time.Time, minutes int) Window {
	end := reference.UTC()
	return Window{
		Start: end.Add(-time.Duration(minutes) * time.Minute),
		End:   end,
	}
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// BucketMinutes returns the bucket width used to split a window: max(window/6, 5).
func BucketMinutes(windowMinutes int) int {
	width := windowMinutes / bucketsPerWindow
	if width < minBucketMinutes {
		return minBucketMinutes
	}
	return width
}

// BucketFor floors a timestamp to a multiple of granularity measured from the Unix epoch.
// Buckets are aligned to epoch time rather than to any window start, so shifting
// windows keep stable bucket edges.
// Example: BucketFor(10:35:42, 5*time.Minute) → 10:35:00
func BucketFor(t time.Time, granularity time.Duration) time.Time {
	width := int64(granularity / time.Second)
	if width <= 0 {
		width = 1
	}
	secs := t.Unix()
	floored := secs - mod(secs, width)
	return time.Unix(floored, 0).UTC()
}

// ParseWindowMinutes validates a window length against the allowed bounds.
func ParseWindowMinutes(minutes, lower, upper int) (int, error) {
	if minutes < lower || minutes > upper {
		return 0, fmt.Errorf("window of %d minutes outside [%d, %d]", minutes, lower, upper)
	}
	return minutes, nil
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
