// Package clock abstracts time so stores and the orchestrator can be tested
// with a fake clock instead of sleeping through real windows.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

// System is the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }
