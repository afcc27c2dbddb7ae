package render

import "sync/atomic"

// Selector chooses the video codec for encode invocations. The downgrade from
// hardware to software is one-way and shared by every job in the process:
// concurrent first-failures may each pay one wasted hardware attempt before
// the flag is observed, which is an accepted trade-off.
type Selector struct {
	hardware string
	software string
	degraded atomic.Bool
}

// NewSelector builds a selector. An empty hardware codec starts degraded.
func NewSelector(hardware, software string) *Selector {
	s := &Selector{hardware: hardware, software: software}
	if hardware == "" {
		s.degraded.Store(true)
	}
	return s
}

// Current returns the codec the next encode should use.
func (s *Selector) Current() string {
	if s.degraded.Load() {
		return s.software
	}
	return s.hardware
}

// Software returns the software codec name.
func (s *Selector) Software() string {
	return s.software
}

// Degraded reports whether the hardware path has been abandoned.
func (s *Selector) Degraded() bool {
	return s.degraded.Load()
}

// Downgrade switches to the software codec for the remainder of the process.
// It reports whether this call performed the switch.
func (s *Selector) Downgrade() bool {
	return s.degraded.CompareAndSwap(false, true)
}
