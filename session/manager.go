// Package session owns the lifecycle of computation sessions on one
// computation agent: admission, slot acquisition, engine invocation,
// deterministic slot release and result retention.
package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.dedis.ch/mpcagent/engine"
	"go.dedis.ch/mpcagent/slotpool"
	"go.dedis.ch/mpcagent/types"
)

var (
	// ErrSaturated is returned when no slot is free at admission time.
	// Sessions are never queued: the caller owns the retry policy.
	ErrSaturated = xerrors.New("agent saturated, no free session slot")
	// ErrUnknownSession is returned for ids the store does not know
	ErrUnknownSession = xerrors.New("unknown session")
	// ErrNotFinished is returned when a result is requested before the
	// session reached a terminal state
	ErrNotFinished = xerrors.New("session not finished")
)

// Config gathers the per-agent session policies
type Config struct {
	// Protocol is the engine protocol passed to every invocation
	Protocol string
	// PlayerID is this agent's party index in the registry
	PlayerID int
	// PlayerHosts lists every party address in registry order
	PlayerHosts []string
	// Programs maps circuit ids to circuit sources; circuits not listed are
	// assumed precompiled under their own name
	Programs map[string]string

	// RunTimeout bounds every engine invocation
	RunTimeout time.Duration
	// GracePeriod bounds how long a cancelled engine may take to die before
	// the slot is forcibly reclaimed
	GracePeriod time.Duration
	// RetentionTTL is how long terminal session records stay queryable
	RetentionTTL time.Duration
}

// Manager drives sessions from admission to completion. Concurrent
// submissions for distinct circuits are independent; the only shared
// resource is the slot pool.
type Manager struct {
	conf   Config
	pool   *slotpool.Pool
	engine engine.Engine
	store  *Store
}

// NewManager creates a session manager on top of the given pool and engine
func NewManager(conf Config, pool *slotpool.Pool, eng engine.Engine) *Manager {
	return &Manager{
		conf:   conf,
		pool:   pool,
		engine: eng,
		store:  NewStore(),
	}
}

// Submit admits a share for a circuit and starts the session. A share for
// an already known circuit id is idempotent: it overwrites the recorded
// share if the engine has not consumed it yet, is ignored otherwise, and
// always returns the existing session rather than admitting a new party.
func (m *Manager) Submit(env *types.ShareEnvelope) (*Session, error) {
	if err := env.Verify(); err != nil {
		return nil, xerrors.Errorf("rejected share: %v", err)
	}
	share := env.Share

	s := newSession(share)
	existing, admitted := m.store.getOrAdd(s)
	if !admitted {
		if existing.updateShare(share) {
			log.Info().Str("session", existing.ID).Str("circuit", share.CircuitID).
				Msg("duplicate share overwrites the pending one")
		} else {
			log.Info().Str("session", existing.ID).Str("circuit", share.CircuitID).
				Msg("duplicate share ignored")
		}
		return existing, nil
	}

	s.setState(SlotPending)

	slot, err := m.pool.Acquire(s.ID)
	if err != nil {
		// no record is kept: a later resend starts from a clean admission
		m.store.remove(s.ID)
		return nil, xerrors.Errorf("circuit %s: %w", share.CircuitID, ErrSaturated)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.conf.RunTimeout)

	s.Lock()
	s.slot = slot
	s.state = Running
	s.cancelRun = cancel
	s.Unlock()

	log.Info().Str("session", s.ID).Str("circuit", s.CircuitID).
		Int("slot", slot.Index).Int("port_base", slot.PortBase).
		Msg("session running")

	go m.run(ctx, s, slot, share)

	return s, nil
}

// run performs the engine invocation for one session. The slot is released
// in the same step that leaves Running, on every path.
func (m *Manager) run(ctx context.Context, s *Session, slot slotpool.Slot, share types.SecretShare) {
	defer s.cancelRun()

	job := engine.Job{
		CircuitID:   share.CircuitID,
		Program:     m.conf.Programs[share.CircuitID],
		Protocol:    m.conf.Protocol,
		PlayerID:    m.conf.PlayerID,
		PlayerHosts: m.conf.PlayerHosts,
		Share:       share,
	}

	res, err := m.engine.Run(ctx, slot, job)

	m.pool.Release(slot)
	if !s.finish(res.Output, err) {
		// the grace period already reclaimed the session
		return
	}

	if err != nil {
		log.Warn().Str("session", s.ID).Str("circuit", s.CircuitID).
			Msgf("session failed: %v", err)
		return
	}
	log.Info().Str("session", s.ID).Str("circuit", s.CircuitID).Msg("session completed")
}

// Status returns the lifecycle state of a session
func (m *Manager) Status(id string) (State, error) {
	s, ok := m.store.get(id)
	if !ok {
		return 0, xerrors.Errorf("%s: %w", id, ErrUnknownSession)
	}
	return s.State(), nil
}

// Get returns the session record for the given id
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.store.get(id)
	if !ok {
		return nil, xerrors.Errorf("%s: %w", id, ErrUnknownSession)
	}
	return s, nil
}

// Result returns the terminal outcome of a session: the engine output on
// success, the failure otherwise. ErrNotFinished while the session runs.
func (m *Manager) Result(id string) ([]byte, error) {
	s, ok := m.store.get(id)
	if !ok {
		return nil, xerrors.Errorf("%s: %w", id, ErrUnknownSession)
	}

	output, failure, done := s.result()
	if !done {
		return nil, xerrors.Errorf("%s: %w", id, ErrNotFinished)
	}
	if failure != nil {
		return nil, failure
	}
	return output, nil
}

// Cancel best-effort terminates a running session. The engine process is
// asked to die via its context; if it does not within the grace period the
// slot is reclaimed anyway and the session forced to Failed.
func (m *Manager) Cancel(id string) error {
	s, ok := m.store.get(id)
	if !ok {
		return xerrors.Errorf("%s: %w", id, ErrUnknownSession)
	}

	s.Lock()
	if s.state.Terminal() {
		s.Unlock()
		return nil
	}
	cancel := s.cancelRun
	slot := s.slot
	s.Unlock()

	log.Info().Str("session", s.ID).Str("circuit", s.CircuitID).Msg("cancelling session")
	if cancel != nil {
		cancel()
	}

	go func() {
		select {
		case <-s.Done():
		case <-time.After(m.conf.GracePeriod):
			// the engine did not die in time: reclaim the slot and leave the
			// engine teardown to be verified asynchronously
			log.Warn().Str("session", s.ID).Msg("engine unresponsive, forcibly reclaiming slot")
			m.pool.Release(slot)
			s.finish(nil, engine.ErrCancelled)
		}
	}()

	return nil
}

// PoolStatus reports pool occupancy for the status endpoint
func (m *Manager) PoolStatus() types.PoolStatusResponse {
	return types.PoolStatusResponse{
		Capacity: m.pool.Capacity(),
		Occupied: m.pool.Occupied(),
		Sessions: m.store.len(),
	}
}

// RetentionDaemon starts a loop that evicts terminal session records once
// their retention window elapses, so results do not stay queryable forever
func (m *Manager) RetentionDaemon(ctx context.Context, interval time.Duration) error {
	if interval == 0 {
		// the retention mechanism must not be activated
		return nil
	}
	ticker := time.NewTicker(interval)

	go func() {
	out:
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				break out
			case <-ticker.C:
				m.evictExpired()
			}
		}
	}()

	return nil
}

func (m *Manager) evictExpired() {
	now := time.Now()
	m.store.forEach(func(s *Session) {
		if s.expired(m.conf.RetentionTTL, now) {
			log.Info().Str("session", s.ID).Str("circuit", s.CircuitID).
				Msg("evicting retained session record")
			m.store.remove(s.ID)
		}
	})
}
