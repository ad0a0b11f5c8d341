package scheduler

import "time"

// Timer is a pending callback that can be cancelled
type Timer interface {
	// Stop prevents the callback from running; false if it already ran or was stopped
	Stop() bool
}

// Clock schedules callbacks after a delay
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is backed by time.AfterFunc
func RealClock() Clock {
	return realClock{}
}
