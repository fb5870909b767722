package scheduler

import "sync/atomic"

// Phase is the lifecycle stage of a provider crawl.
type Phase int32

// Crawl phases, in order.
const (
	PhaseIdle Phase = iota
	PhaseDispatching
	PhaseDraining
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDispatching:
		return "dispatching"
	case PhaseDraining:
		return "draining"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// State is the per-provider crawl state. Every field is an independent atomic,
// so workers never contend on a shared lock.
type State struct {
	totalPages    atomic.Int64
	highWaterMark atomic.Int64
	processed     atomic.Int64
	failed        atomic.Int64
	phase         atomic.Int32
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	TotalPages    int
	HighWaterMark int
	Processed     int
	Failed        int
	Phase         Phase
}

// Snapshot copies the current counters.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		TotalPages:    int(s.totalPages.Load()),
		HighWaterMark: int(s.highWaterMark.Load()),
		Processed:     int(s.processed.Load()),
		Failed:        int(s.failed.Load()),
		Phase:         Phase(s.phase.Load()),
	}
}

// Reset zeroes every counter and returns the state to PhaseIdle.
func (s *State) Reset() {
	s.totalPages.Store(0)
	s.highWaterMark.Store(0)
	s.processed.Store(0)
	s.failed.Store(0)
	s.phase.Store(int32(PhaseIdle))
}

// advance raises the high-water mark to target. It returns the previous mark
// and whether this caller won the advance; the mark never decreases.
func (s *State) advance(target int) (int, bool) {
	for {
		current := s.highWaterMark.Load()
		if current >= int64(target) {
			return int(current), false
		}
		if s.highWaterMark.CompareAndSwap(current, int64(target)) {
			return int(current), true
		}
	}
}

func (s *State) setPhase(p Phase) {
	s.phase.Store(int32(p))
}
