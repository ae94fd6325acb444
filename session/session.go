package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.dedis.ch/mpcagent/slotpool"
	"go.dedis.ch/mpcagent/types"
)

// State is the lifecycle state of a computation session
type State int

const (
	// Admitted means the session record was created on first share arrival
	Admitted State = iota
	// SlotPending means the session is requesting a port-base slot
	SlotPending
	// Running means a slot is reserved and the engine invocation is in flight
	Running
	// Completed is terminal, the engine reported success
	Completed
	// Failed is terminal, the engine reported an error, timed out or was
	// cancelled
	Failed
)

// String returns a readable name for the state
func (s State) String() string {
	switch s {
	case Admitted:
		return "admitted"
	case SlotPending:
		return "slot_pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal tells whether the state is final
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Session is one in-flight MPC job on this agent. It is owned exclusively
// by the manager; callers observe it through ID, Status and Result.
type Session struct {
	*sync.Mutex

	ID        string
	CircuitID string

	state     State
	slot      slotpool.Slot
	share     types.SecretShare
	createdAt time.Time
	doneAt    time.Time

	output  []byte
	failure error

	cancelRun context.CancelFunc
	done      chan struct{}
}

func newSession(share types.SecretShare) *Session {
	return &Session{
		Mutex:     &sync.Mutex{},
		ID:        uuid.NewString(),
		CircuitID: share.CircuitID,
		state:     Admitted,
		share:     share,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.Lock()
	defer s.Unlock()
	return s.state
}

// Done returns a channel closed when the session reaches a terminal state
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) setState(state State) {
	s.Lock()
	defer s.Unlock()
	s.state = state
}

// updateShare overwrites the recorded input share. Only possible before the
// engine has consumed it.
func (s *Session) updateShare(share types.SecretShare) bool {
	s.Lock()
	defer s.Unlock()
	if s.state != Admitted && s.state != SlotPending {
		return false
	}
	s.share = share
	return true
}

// finish moves the session to its terminal state exactly once. The input
// share is dropped in the same step: payloads must not outlive the session
// privacy boundary.
func (s *Session) finish(output []byte, failure error) bool {
	s.Lock()
	defer s.Unlock()

	if s.state.Terminal() {
		return false
	}

	if failure != nil {
		s.state = Failed
		s.failure = failure
	} else {
		s.state = Completed
		s.output = output
	}
	s.share = types.SecretShare{}
	s.doneAt = time.Now()
	close(s.done)
	return true
}

// result returns the terminal outcome, or false while the session runs
func (s *Session) result() ([]byte, error, bool) {
	s.Lock()
	defer s.Unlock()
	if !s.state.Terminal() {
		return nil, nil, false
	}
	return s.output, s.failure, true
}

// expired tells whether a terminal session left its retention window
func (s *Session) expired(ttl time.Duration, now time.Time) bool {
	s.Lock()
	defer s.Unlock()
	return s.state.Terminal() && now.Sub(s.doneAt) > ttl
}
