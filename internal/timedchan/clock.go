package timedchan

// Clock is a per-context logical cycle counter. Every context owns exactly
// one Clock; only that context's goroutine may advance it.
type Clock struct {
	cycles uint64
}

// Now returns the clock's current cycle.
func (c *Clock) Now() uint64 {
	return c.cycles
}

// Advance moves the clock forward by delta cycles unconditionally.
func (c *Clock) Advance(delta uint64) {
	c.cycles += delta
}

// AdvanceTo moves the clock forward to t if t is later than the current
// cycle, and leaves it untouched otherwise (the max(t, dispatch) rule).
func (c *Clock) AdvanceTo(t uint64) {
	if t > c.cycles {
		c.cycles = t
	}
}
