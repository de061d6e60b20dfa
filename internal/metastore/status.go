package metastore

import "sync/atomic"

// status mirrors the 4-state diagram (Stopped -> Starting -> Started ->
// Stopping -> Stopped) from original_source's AtomicReference<Status>,
// re-expressed as a CAS'd int32 since Go has no atomic reference to an
// arbitrary comparable value smaller than a pointer.
type status int32

const (
	statusStopped status = iota
	statusStarting
	statusStarted
	statusStopping
)

func (s status) String() string {
	switch s {
	case statusStopped:
		return "Stopped"
	case statusStarting:
		return "Starting"
	case statusStarted:
		return "Started"
	case statusStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// statusCell is a CAS-guarded status cell. Start/stop transitions are
// globally serialised by a single compare-and-set; a second concurrent
// start (or stop) loses the race and becomes a no-op (S6).
type statusCell struct {
	v atomic.Int32
}

func (c *statusCell) load() status {
	return status(c.v.Load())
}

func (c *statusCell) cas(from, to status) bool {
	return c.v.CompareAndSwap(int32(from), int32(to))
}
