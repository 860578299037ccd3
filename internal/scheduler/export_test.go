package scheduler

import "time"

// SetClock replaces the sweeper's clock in tests.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }
