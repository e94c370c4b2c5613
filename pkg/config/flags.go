package config

import "sync/atomic"

// FlagSource hands out consistent feature-flag snapshots. Hot reloads swap
// the whole snapshot; a request that grabbed Flags before the swap keeps
// seeing the old values for its lifetime.
type FlagSource struct {
	p atomic.Pointer[Flags]
}

func NewFlagSource(f Flags) *FlagSource {
	s := &FlagSource{}
	s.p.Store(&f)
	return s
}

// Current returns the live snapshot by value.
func (s *FlagSource) Current() Flags {
	return *s.p.Load()
}

// Replace publishes a new snapshot.
func (s *FlagSource) Replace(f Flags) {
	s.p.Store(&f)
}
