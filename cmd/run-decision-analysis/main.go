/*
Package main is the entry point for run-decision-analysis.

run-decision-analysis produces one validated environmental-control decision for a
mushroom growing room: it extracts the room's current state, daily statistics and
recent setpoint changes, retrieves similar historical observations, asks the
language model for a decision and validates it against the device capability
document.

Usage:

	run-decision-analysis --room-id 611 [--datetime "2024-11-20 10:00:00"] [--output decision.json] [--verbose] [--no-console]

Any completed analysis exits 0, including fallback and error decisions. Exit code 1
is reserved for argument errors and initialization failures.
*/
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
