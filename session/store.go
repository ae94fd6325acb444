package session

import "sync"

// Store implements a thread-safe session table, indexed both by session id
// and by circuit id. The circuit index is what makes duplicate share
// submissions land on the existing session instead of admitting a phantom
// party.
type Store struct {
	*sync.RWMutex
	byID      map[string]*Session
	byCircuit map[string]*Session
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{
		RWMutex:   &sync.RWMutex{},
		byID:      map[string]*Session{},
		byCircuit: map[string]*Session{},
	}
}

// getOrAdd inserts s unless a session for the same circuit already exists,
// in which case the existing one is returned instead. Lookup and insertion
// are a single critical section so two concurrent submissions of one
// circuit can never both be admitted.
func (st *Store) getOrAdd(s *Session) (*Session, bool) {
	st.Lock()
	defer st.Unlock()
	if existing, ok := st.byCircuit[s.CircuitID]; ok {
		return existing, false
	}
	st.byID[s.ID] = s
	st.byCircuit[s.CircuitID] = s
	return s, true
}

func (st *Store) get(id string) (*Session, bool) {
	st.RLock()
	defer st.RUnlock()
	s, ok := st.byID[id]
	return s, ok
}

func (st *Store) remove(id string) {
	st.Lock()
	defer st.Unlock()
	s, ok := st.byID[id]
	if !ok {
		return
	}
	delete(st.byID, id)
	if cur, ok := st.byCircuit[s.CircuitID]; ok && cur.ID == id {
		delete(st.byCircuit, s.CircuitID)
	}
}

func (st *Store) len() int {
	st.RLock()
	defer st.RUnlock()
	return len(st.byID)
}

func (st *Store) forEach(action func(s *Session)) {
	st.RLock()
	sessions := make([]*Session, 0, len(st.byID))
	for _, s := range st.byID {
		sessions = append(sessions, s)
	}
	st.RUnlock()

	for _, s := range sessions {
		action(s)
	}
}
