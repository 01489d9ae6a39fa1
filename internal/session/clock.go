package session

import "time"

// Clock abstracts the time source so that the guard's cooldown/debounce
// behavior and the countdown are deterministic under test.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules f to run once after d and returns a cancellable task.
	AfterFunc(d time.Duration, f func()) Task
	NewTicker(d time.Duration) Ticker
}

// Task is a scheduled one-shot callback that can be cancelled.
type Task interface {
	// Stop cancels the task. Returns false if it already fired.
	Stop() bool
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemClock struct{}

// SystemClock returns a Clock backed by the real time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Task {
	return systemTask{time.AfterFunc(d, f)}
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTask struct{ t *time.Timer }

func (t systemTask) Stop() bool { return t.t.Stop() }

type systemTicker struct{ t *time.Ticker }

func (t systemTicker) C() <-chan time.Time { return t.t.C }
func (t systemTicker) Stop()               { t.t.Stop() }
