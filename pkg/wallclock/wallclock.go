// Package wallclock provides the wall-clock sources used to bound accepted
// logical times.
package wallclock

import "time"

// Source reads the node's wall clock.
type Source interface {
	Now() time.Time
}

// SystemSource reads the operating system clock.
type SystemSource struct{}

func NewSystemSource() *SystemSource {
	return &SystemSource{}
}

func (s *SystemSource) Now() time.Time {
	return time.Now()
}

var _ Source = &SystemSource{}
