package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"go.dedis.ch/mpcagent/engine"
	"go.dedis.ch/mpcagent/sharing"
	"go.dedis.ch/mpcagent/slotpool"
	"go.dedis.ch/mpcagent/types"
)

// fakeEngine is a deterministic stand-in for the external MPC engine
type fakeEngine struct {
	*sync.Mutex
	slots  map[string]slotpool.Slot
	block  chan struct{}
	output []byte
	err    error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		Mutex:  &sync.Mutex{},
		slots:  map[string]slotpool.Slot{},
		output: []byte("42"),
	}
}

func (f *fakeEngine) Run(ctx context.Context, slot slotpool.Slot, job engine.Job) (engine.Result, error) {
	f.Lock()
	f.slots[job.CircuitID] = slot
	block := f.block
	out := f.output
	err := f.err
	f.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return engine.Result{}, engine.ErrTimeout
			}
			return engine.Result{}, engine.ErrCancelled
		}
	}

	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Output: out}, nil
}

func (f *fakeEngine) slotOf(circuitID string) slotpool.Slot {
	f.Lock()
	defer f.Unlock()
	return f.slots[circuitID]
}

func testConfig() Config {
	return Config{
		Protocol:     "shamir",
		PlayerID:     0,
		PlayerHosts:  []string{"127.0.0.1:5001", "127.0.0.1:5002"},
		RunTimeout:   time.Second * 2,
		GracePeriod:  time.Millisecond * 500,
		RetentionTTL: time.Minute,
	}
}

func submitShare(t *testing.T, m *Manager, circuitID string) *Session {
	t.Helper()
	env := shareEnvelope(circuitID)
	s, err := m.Submit(env)
	require.NoError(t, err)
	return s
}

func shareEnvelope(circuitID string) *types.ShareEnvelope {
	return &types.ShareEnvelope{
		Share: types.SecretShare{
			CircuitID:  circuitID,
			PartyIndex: 0,
			NumParties: 2,
			Share:      sharing.Share{Index: 1, Prime: "1000000009", Length: 1, Values: []string{"7"}},
		},
	}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second * 2)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, want, s.State())
}

func Test_session_completes_and_frees_slot(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 1)
	eng := newFakeEngine()
	m := NewManager(testConfig(), pool, eng)

	s := submitShare(t, m, "c1")
	require.Equal(t, s.CircuitID, "c1")

	<-s.Done()
	require.Equal(t, Completed, s.State())
	require.Equal(t, 0, pool.Occupied())

	output, err := m.Result(s.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("42"), output)
}

func Test_session_failure_frees_slot(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 1)
	eng := newFakeEngine()
	eng.err = xerrors.Errorf("bad share: %w", engine.ErrProtocolFailure)
	m := NewManager(testConfig(), pool, eng)

	s := submitShare(t, m, "c1")

	<-s.Done()
	require.Equal(t, Failed, s.State())
	require.Equal(t, 0, pool.Occupied())

	_, err := m.Result(s.ID)
	require.ErrorIs(t, err, engine.ErrProtocolFailure)
}

func Test_session_timeout_frees_slot(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 1)
	eng := newFakeEngine()
	eng.block = make(chan struct{})

	conf := testConfig()
	conf.RunTimeout = time.Millisecond * 100
	m := NewManager(conf, pool, eng)

	s := submitShare(t, m, "c1")

	<-s.Done()
	require.Equal(t, Failed, s.State())
	require.Equal(t, 0, pool.Occupied())

	_, err := m.Result(s.ID)
	require.ErrorIs(t, err, engine.ErrTimeout)
}

func Test_session_last_free_slot(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 3)

	// pre-occupy all slots but one
	_, err := pool.Acquire("occupier-0")
	require.NoError(t, err)
	_, err = pool.Acquire("occupier-1")
	require.NoError(t, err)

	eng := newFakeEngine()
	m := NewManager(testConfig(), pool, eng)

	s := submitShare(t, m, "c1")
	require.Equal(t, 2, eng.slotOf("c1").Index)

	<-s.Done()
	require.Equal(t, Completed, s.State())

	// the single free slot is free again right after completion
	slot, err := pool.Acquire("next")
	require.NoError(t, err)
	require.Equal(t, 2, slot.Index)
}

func Test_concurrent_sessions_distinct_slots(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 3)
	eng := newFakeEngine()
	eng.block = make(chan struct{})
	m := NewManager(testConfig(), pool, eng)

	circuits := []string{"c1", "c2", "c3"}
	sessions := make([]*Session, len(circuits))

	g := new(errgroup.Group)
	for i, circuitID := range circuits {
		i, circuitID := i, circuitID
		g.Go(func() error {
			s, err := m.Submit(shareEnvelope(circuitID))
			if err != nil {
				return err
			}
			sessions[i] = s
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := map[int]bool{}
	for i, circuitID := range circuits {
		require.Equal(t, Running, sessions[i].State())
		idx := eng.slotOf(circuitID).Index
		require.False(t, seen[idx], "slot %d assigned twice", idx)
		seen[idx] = true
	}

	// a fourth submission over a saturated pool is rejected, not queued
	_, err := m.Submit(shareEnvelope("c4"))
	require.ErrorIs(t, err, ErrSaturated)

	close(eng.block)
	for _, s := range sessions {
		<-s.Done()
		require.Equal(t, Completed, s.State())
	}
	require.Equal(t, 0, pool.Occupied())

	// once a slot is free, the rejected circuit can be resubmitted
	s, err := m.Submit(shareEnvelope("c4"))
	require.NoError(t, err)
	<-s.Done()
}

func Test_duplicate_share_is_idempotent(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 3)
	eng := newFakeEngine()
	eng.block = make(chan struct{})
	m := NewManager(testConfig(), pool, eng)

	s1 := submitShare(t, m, "c1")
	s2 := submitShare(t, m, "c1")

	// the duplicate lands on the existing session, no phantom party
	require.Equal(t, s1.ID, s2.ID)
	require.Equal(t, 1, m.store.len())
	require.Equal(t, 1, pool.Occupied())

	close(eng.block)
	<-s1.Done()
}

func Test_concurrent_duplicate_shares_admit_one_session(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 8)
	eng := newFakeEngine()
	eng.block = make(chan struct{})
	m := NewManager(testConfig(), pool, eng)

	// resends racing the in-flight original must all land on one session
	sessions := make([]*Session, 8)
	wg := sync.WaitGroup{}
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Submit(shareEnvelope("c1"))
			require.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		require.Equal(t, sessions[0].ID, s.ID)
	}
	require.Equal(t, 1, m.store.len())
	require.Equal(t, 1, pool.Occupied())

	close(eng.block)
	<-sessions[0].Done()
	require.Equal(t, 0, pool.Occupied())
}

func Test_cancel_running_session(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 1)
	eng := newFakeEngine()
	eng.block = make(chan struct{})
	m := NewManager(testConfig(), pool, eng)

	s := submitShare(t, m, "c1")
	require.Equal(t, Running, s.State())

	require.NoError(t, m.Cancel(s.ID))

	<-s.Done()
	require.Equal(t, Failed, s.State())

	_, err := m.Result(s.ID)
	require.ErrorIs(t, err, engine.ErrCancelled)

	// the slot must be acquirable again within the grace period bound
	deadline := time.Now().Add(m.conf.GracePeriod + time.Second)
	for {
		if _, err := pool.Acquire("next"); err == nil {
			break
		}
		require.True(t, time.Now().Before(deadline), "slot still reserved after grace period")
		time.Sleep(time.Millisecond * 10)
	}

	// cancelling a finished session is a no-op
	require.NoError(t, m.Cancel(s.ID))
}

func Test_cancel_unresponsive_engine_reclaims_slot(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 1)

	// engine that ignores its context entirely
	eng := newFakeEngine()
	eng.block = make(chan struct{})
	deaf := &deafEngine{inner: eng}

	conf := testConfig()
	conf.GracePeriod = time.Millisecond * 100
	m := NewManager(conf, pool, deaf)

	s := submitShare(t, m, "c1")
	require.NoError(t, m.Cancel(s.ID))

	<-s.Done()
	require.Equal(t, Failed, s.State())

	// the grace period elapsed, the slot was forcibly reclaimed
	_, err := pool.Acquire("next")
	require.NoError(t, err)

	close(eng.block)
}

// deafEngine wraps a fakeEngine but never observes cancellation
type deafEngine struct {
	inner *fakeEngine
}

func (d *deafEngine) Run(ctx context.Context, slot slotpool.Slot, job engine.Job) (engine.Result, error) {
	return d.inner.Run(context.Background(), slot, job)
}

func Test_status_and_unknown_session(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 1)
	eng := newFakeEngine()
	m := NewManager(testConfig(), pool, eng)

	s := submitShare(t, m, "c1")
	<-s.Done()

	state, err := m.Status(s.ID)
	require.NoError(t, err)
	require.Equal(t, Completed, state)

	_, err = m.Status("no-such-id")
	require.ErrorIs(t, err, ErrUnknownSession)
	_, err = m.Result("no-such-id")
	require.ErrorIs(t, err, ErrUnknownSession)
	require.ErrorIs(t, m.Cancel("no-such-id"), ErrUnknownSession)
}

func Test_result_before_completion(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 1)
	eng := newFakeEngine()
	eng.block = make(chan struct{})
	m := NewManager(testConfig(), pool, eng)

	s := submitShare(t, m, "c1")

	_, err := m.Result(s.ID)
	require.ErrorIs(t, err, ErrNotFinished)

	close(eng.block)
	<-s.Done()
}

func Test_retention_daemon_evicts_records(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 1)
	eng := newFakeEngine()

	conf := testConfig()
	conf.RetentionTTL = time.Millisecond * 50
	m := NewManager(conf, pool, eng)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.RetentionDaemon(ctx, time.Millisecond*20))

	s := submitShare(t, m, "c1")
	<-s.Done()

	deadline := time.Now().Add(time.Second)
	for m.store.len() > 0 {
		require.True(t, time.Now().Before(deadline), "record not evicted")
		time.Sleep(time.Millisecond * 10)
	}

	_, err := m.Status(s.ID)
	require.ErrorIs(t, err, ErrUnknownSession)

	// after eviction a new submission for the circuit admits a new session
	s2 := submitShare(t, m, "c1")
	require.NotEqual(t, s.ID, s2.ID)
	<-s2.Done()
}

func Test_rejects_bad_signature(t *testing.T) {
	pool := slotpool.NewPool(5000, 10, 1)
	m := NewManager(testConfig(), pool, newFakeEngine())

	env := shareEnvelope("c1")
	env.Origin = "0xdead" // claims an origin but carries no signature

	_, err := m.Submit(env)
	require.Error(t, err)
	require.Equal(t, 0, pool.Occupied())
}

func Test_release_exactly_once_under_storm(t *testing.T) {
	capacity := 4
	pool := slotpool.NewPool(5000, 10, capacity)
	eng := newFakeEngine()
	m := NewManager(testConfig(), pool, eng)

	// many short sessions churning over a small pool must never leak a slot
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Submit(shareEnvelope(fmt.Sprintf("storm-%d", i)))
			if err != nil {
				return
			}
			<-s.Done()
		}(i)
	}
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for pool.Occupied() > 0 {
		require.True(t, time.Now().Before(deadline), "leaked slots: %d", pool.Occupied())
		time.Sleep(time.Millisecond * 10)
	}
}
