package jit

import (
	"fmt"
	"sync"
	"time"
)

// State is where the loop currently is. It is observability only; the
// loop's behaviour does not depend on it.
type State int

const (
	StateAttaching State = iota
	StateRunning
	StateContinuing
	StateClassifying
	StateMapping
	StateSkipping
	StateResuming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateAttaching:
		return "attaching"
	case StateRunning:
		return "running"
	case StateContinuing:
		return "continuing"
	case StateClassifying:
		return "classifying"
	case StateMapping:
		return "mapping"
	case StateSkipping:
		return "skipping"
	case StateResuming:
		return "resuming"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name, so monitor clients can decode
// snapshots.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateAttaching; st <= StateStopped; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown loop state %q", text)
}

// Region records one prepared JIT region.
type Region struct {
	Address  uint64 `json:"address"`
	Size     uint64 `json:"size"`
	Sequence uint   `json:"sequence"`
	Status   string `json:"status,omitempty"`
}

func (r Region) String() string {
	return fmt.Sprintf("#%d 0x%x (%s)", r.Sequence, r.Address, FormatSize(r.Size))
}

// Counters only grow during a session.
type Counters struct {
	TotalContinues   uint   `json:"total_continues"`
	ValidJitRequests uint   `json:"valid_jit_requests"`
	TotalBytesMapped uint64 `json:"total_bytes_mapped"`

	// SkippedStops counts stops the loop ignored: other exceptions,
	// unusable replies, failed fetches and non-BRK words.
	SkippedStops uint `json:"skipped_stops"`

	// SteppedOver counts debug and unknown breakpoints resumed past.
	SteppedOver uint `json:"stepped_over"`
}

// Snapshot is a consistent copy of a session.
type Snapshot struct {
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	Counters  Counters  `json:"counters"`
	Regions   []Region  `json:"regions"`
	LastStop  string    `json:"last_stop,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session holds the counters and region log of one attach. The loop is
// the only writer; Snapshot may be called from any goroutine.
type Session struct {
	mu        sync.RWMutex
	pid       int
	state     State
	counters  Counters
	regions   []Region
	lastStop  string
	startedAt time.Time
	updatedAt time.Time
}

// NewSession returns an empty session.
func NewSession() *Session {
	now := time.Now()
	return &Session{startedAt: now, updatedAt: now}
}

// iteration collects what happened during one Step. It is committed in a
// single critical section so readers never see a half-applied iteration.
type iteration struct {
	continued bool
	skipped   bool
	stepped   bool
	region    *Region
	stop      string
}

func (s *Session) begin(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.pid = pid
	s.state = StateAttaching
	s.counters = Counters{}
	s.regions = nil
	s.lastStop = ""
	s.startedAt = now
	s.updatedAt = now
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// nextSequence is the sequence number the next region will get.
func (s *Session) nextSequence() uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters.ValidJitRequests + 1
}

func (s *Session) commit(it *iteration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it.continued {
		s.counters.TotalContinues++
	}
	if it.skipped {
		s.counters.SkippedStops++
	}
	if it.stepped {
		s.counters.SteppedOver++
	}
	if it.region != nil {
		s.counters.ValidJitRequests++
		s.counters.TotalBytesMapped += it.region.Size
		it.region.Sequence = s.counters.ValidJitRequests
		s.regions = append(s.regions, *it.region)
	}
	if it.stop != "" {
		s.lastStop = it.stop
	}
	s.updatedAt = time.Now()
}

// Counters returns a copy of the counters.
func (s *Session) Counters() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters
}

// Regions returns a copy of the region log, oldest first.
func (s *Session) Regions() []Region {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Region, len(s.regions))
	copy(out, s.regions)
	return out
}

// Snapshot returns a copy of the whole session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	regions := make([]Region, len(s.regions))
	copy(regions, s.regions)
	return Snapshot{
		PID:       s.pid,
		State:     s.state,
		Counters:  s.counters,
		Regions:   regions,
		LastStop:  s.lastStop,
		StartedAt: s.startedAt,
		UpdatedAt: s.updatedAt,
	}
}

// FormatSize renders a byte count the way progress lines show it:
// "1.50 MB", "16.00 KB" or "512 bytes".
func FormatSize(size uint64) string {
	switch {
	case size >= 1024*1024:
		return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
	case size >= 1024:
		return fmt.Sprintf("%.2f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
