package config

import "sync/atomic"

// Live holds the active policy. Readers always see a complete Policy value;
// WatchPolicy swaps it when the config file changes.
type Live struct {
	p atomic.Pointer[Policy]
}

// NewLive creates a holder seeded with p.
func NewLive(p Policy) *Live {
	l := &Live{}
	l.Set(p)
	return l
}

// Policy returns the current policy.
func (l *Live) Policy() Policy {
	return *l.p.Load()
}

// Set replaces the current policy.
func (l *Live) Set(p Policy) {
	l.p.Store(&p)
}
