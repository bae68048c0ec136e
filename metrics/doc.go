// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics defines the Prometheus collectors exported on /metrics.
//
// Collectors are registered with the default registry at init through
// promauto. Callers use the Record helpers rather than touching the vectors
// directly so label sets stay consistent.
package metrics
