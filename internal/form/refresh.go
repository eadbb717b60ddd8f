package form

import "sync/atomic"

// RefreshSignal is the flag a form raises to ask the plans list to re-fetch.
// The list side owns clearing it.
type RefreshSignal struct {
	pending atomic.Bool
}

// Request raises the flag
func (s *RefreshSignal) Request() {
	s.pending.Store(true)
}

// Consume reports whether a refresh was requested and clears the flag
func (s *RefreshSignal) Consume() bool {
	return s.pending.Swap(false)
}
