// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate is a request budget such as "100 per hour".
type Rate struct {
	Limit  int
	Window time.Duration
}

// ParseRate accepts "<n> per <unit>" or "<n>/<unit>" where unit is
// second, minute, hour or day (singular or plural).
func ParseRate(s string) (Rate, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	var count, unit string
	if before, after, ok := strings.Cut(s, " per "); ok {
		count, unit = before, after
	} else if before, after, ok := strings.Cut(s, "/"); ok {
		count, unit = before, after
	} else {
		return Rate{}, fmt.Errorf("invalid rate %q", s)
	}

	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Rate{}, fmt.Errorf("invalid rate count in %q", s)
	}

	var window time.Duration
	switch strings.TrimSuffix(strings.TrimSpace(unit), "s") {
	case "second":
		window = time.Second
	case "minute":
		window = time.Minute
	case "hour":
		window = time.Hour
	case "day":
		window = 24 * time.Hour
	default:
		return Rate{}, fmt.Errorf("invalid rate unit in %q", s)
	}

	return Rate{Limit: n, Window: window}, nil
}
