package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxDelay caps how far ahead a one-shot may be scheduled.
const DefaultMaxDelay = 24 * time.Hour

// ParseDelay parses the strict "<N><unit>" grammar of the schedule command:
// a positive integer immediately followed by s, m, or h. No spaces, no
// fractions, no compound forms like "1h30m". A zero max applies
// DefaultMaxDelay.
func ParseDelay(raw string, max time.Duration) (time.Duration, error) {
	if max <= 0 {
		max = DefaultMaxDelay
	}
	s := strings.TrimSpace(raw)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid delay %q: expected <number><s|m|h>", raw)
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	default:
		return 0, fmt.Errorf("invalid delay unit in %q: use s, m or h", raw)
	}

	num := s[:len(s)-1]
	for _, r := range num {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid delay %q: expected <number><s|m|h>", raw)
		}
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: %w", raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("delay must be positive, got %q", raw)
	}
	// Checked against the cap before multiplying so huge counts cannot
	// overflow the duration.
	if n > int64(max/unit) {
		return 0, fmt.Errorf("delay %s exceeds the maximum of %s", s, max)
	}
	return time.Duration(n) * unit, nil
}
