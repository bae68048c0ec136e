// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"log/slog"
	"os"

	"github.com/beaconhill/compliance-tracker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		slog.Error("tracker failed", "error", err)
		os.Exit(1)
	}
}
