// Package simtypes holds the identifiers and small value types shared by every
// engine in the simulation kernel: Tick, the opaque ID types, AgentID, and the
// vehicle model. None of these types know how to move anything; they're the
// vocabulary the engines share.
package simtypes

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TIMESTEP is the fixed duration of one simulation tick.
const TIMESTEP = 100 * time.Millisecond

// Tick is a non-negative count of TIMESTEP-sized simulation steps.
type Tick int64

// ZeroTick is the start of a simulation.
const ZeroTick Tick = 0

// Next returns the following tick.
func (t Tick) Next() Tick {
	return t + 1
}

// IsMultipleOf reports whether t is an exact multiple of other. A zero divisor
// never matches (mirrors "savestate_every=Some(0)" being meaningless).
func (t Tick) IsMultipleOf(other Tick) bool {
	if other <= 0 {
		return false
	}
	return t%other == 0
}

// Duration returns the simulated duration represented by t ticks.
func (t Tick) Duration() time.Duration {
	return time.Duration(t) * TIMESTEP
}

// Seconds returns the elapsed simulated seconds.
func (t Tick) Seconds() float64 {
	return t.Duration().Seconds()
}

func (t Tick) String() string {
	return fmt.Sprintf("%02d:%02d:%05.2f", int64(t)/36000, (int64(t)/600)%60, float64(int64(t)%600)/10.0)
}

const tickFilenamePrefix = "tick"

// AsFilename encodes t into a savestate filename component that sorts lexically
// in tick order and round-trips through ParseFilename.
func (t Tick) AsFilename() string {
	return fmt.Sprintf("%s_%020d", tickFilenamePrefix, int64(t))
}

// ParseFilename is the inverse of AsFilename.
func ParseFilename(name string) (Tick, error) {
	trimmed := strings.TrimSuffix(name, ".json")
	if !strings.HasPrefix(trimmed, tickFilenamePrefix+"_") {
		return 0, fmt.Errorf("invalid savestate filename %q: missing %q prefix", name, tickFilenamePrefix)
	}
	digits := strings.TrimPrefix(trimmed, tickFilenamePrefix+"_")
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid savestate filename %q: %w", name, err)
	}
	return Tick(n), nil
}
