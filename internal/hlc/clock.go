// Package hlc implements a hybrid logical clock: wall-clock milliseconds
// plus a logical counter plus a device identifier. Stamps are totally
// ordered and strictly increasing per device, which gives cross-device
// edits a deterministic causal order without synchronized wall clocks.
package hlc

import (
	"fmt"
	"sync"
	"time"
)

// Stamp is a single hybrid logical clock value. The zero Stamp ranks
// below every stamp a real clock can produce.
type Stamp struct {
	TS     int64  `json:"ts"`     // wall-clock milliseconds since epoch
	Count  uint32 `json:"count"`  // logical counter for same-millisecond causality
	Device string `json:"device"` // tie-breaker for deterministic total order
}

// Compare returns -1, 0, or +1 ordering a against b. Timestamps compare
// first, then counters, then device IDs lexicographically. Two stamps
// from different devices are never equal-ranked-but-distinct.
func Compare(a, b Stamp) int {
	switch {
	case a.TS < b.TS:
		return -1
	case a.TS > b.TS:
		return 1
	case a.Count < b.Count:
		return -1
	case a.Count > b.Count:
		return 1
	case a.Device < b.Device:
		return -1
	case a.Device > b.Device:
		return 1
	default:
		return 0
	}
}

// After reports whether s ranks strictly higher than other.
func (s Stamp) After(other Stamp) bool {
	return Compare(s, other) > 0
}

// IsZero reports whether s is the zero stamp (no operation applied yet).
func (s Stamp) IsZero() bool {
	return s.TS == 0 && s.Count == 0 && s.Device == ""
}

func (s Stamp) String() string {
	return fmt.Sprintf("%d.%d@%s", s.TS, s.Count, s.Device)
}

// Clock is the process-wide clock for one device. It is explicitly owned
// and injected rather than global, so tests can run independent clocks
// per simulated device. All methods are safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	ts      int64
	count   uint32
	device  string
	nowFunc func() time.Time // injectable for deterministic tests
}

// New creates a Clock for the given device identity, starting at the
// current wall time.
func New(device string) *Clock {
	c := &Clock{device: device, nowFunc: time.Now}
	c.ts = c.nowMillis()

	return c
}

// NewAt creates a Clock with an injected time source. Tests use this to
// simulate frozen or skewed wall clocks.
func NewAt(device string, now func() time.Time) *Clock {
	return &Clock{device: device, nowFunc: now, ts: now().UnixMilli()}
}

func (c *Clock) nowMillis() int64 {
	return c.nowFunc().UnixMilli()
}

// Tick advances the clock and returns a fresh stamp. When wall time has
// moved past the stored timestamp the counter resets to zero; otherwise
// the timestamp is kept and the counter increments, so consecutive calls
// within one millisecond still produce strictly increasing stamps.
func (c *Clock) Tick() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowMillis()
	if now > c.ts {
		c.ts = now
		c.count = 0
	} else {
		c.count++
	}

	return Stamp{TS: c.ts, Count: c.count, Device: c.device}
}

// Observe merges a received remote stamp into the clock (the HLC receive
// rule). The clock only ever advances: the new timestamp is the max of
// local, remote, and wall time, and the counter is derived from
// whichever side(s) the max came from.
func (c *Clock) Observe(remote Stamp) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowMillis()

	maxTS := c.ts
	if remote.TS > maxTS {
		maxTS = remote.TS
	}

	if now > maxTS {
		maxTS = now
	}

	switch {
	case maxTS == c.ts && maxTS == remote.TS:
		if remote.Count > c.count {
			c.count = remote.Count
		}

		c.count++
	case maxTS == c.ts:
		c.count++
	case maxTS == remote.TS:
		c.count = remote.Count + 1
	default:
		c.count = 0
	}

	c.ts = maxTS
}

// Now returns the clock's current stamp without advancing it.
func (c *Clock) Now() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stamp{TS: c.ts, Count: c.count, Device: c.device}
}

// Device returns the device identity the clock stamps with.
func (c *Clock) Device() string {
	return c.device
}
