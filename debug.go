package veil

import (
	"fmt"
	"os"
	"time"
)

// tickStats holds per-tick metrics. Only populated when the compositor's
// debug mode is on.
type tickStats struct {
	tickTime time.Duration
	layers   int
	rendered int
	tier     Tier
}

// debugLog prints tick stats to stderr.
func (c *Compositor) debugLog(stats tickStats) {
	_, _ = fmt.Fprintf(os.Stderr,
		"[veil] tick: %v | layers: %d | rendered: %d | tier: %s\n",
		stats.tickTime, stats.layers, stats.rendered, stats.tier)
}

// debugLogf prints a one-off debug line to stderr.
func debugLogf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "[veil] "+format+"\n", args...)
}
