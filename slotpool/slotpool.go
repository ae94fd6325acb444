package slotpool

import (
	"sync"

	"golang.org/x/xerrors"
)

// ErrBusy is returned by Acquire when every slot is reserved. The caller
// decides whether to retry or reject; the pool never queues.
var ErrBusy = xerrors.New("no free slot in the pool")

// Slot is an exclusive reservation of one port range. The owner is recorded
// so that a stale release (after the slot has been handed to another
// session) cannot free someone else's ports.
type Slot struct {
	Index    int
	PortBase int
	Step     int
	Owner    string
}

// Ports returns the concrete ports owned by the slot
func (s Slot) Ports() []int {
	ports := make([]int, s.Step)
	for i := range ports {
		ports[i] = s.PortBase + i
	}
	return ports
}

// Pool implements a thread-safe table of port-base slots. Each slot is
// either free or reserved by exactly one session; slot i owns ports
// base+i*step .. base+(i+1)*step-1.
type Pool struct {
	*sync.Mutex
	base   int
	step   int
	owners []string
}

// NewPool creates a pool of size free slots above the given port base
func NewPool(base, step, size int) *Pool {
	return &Pool{
		Mutex:  &sync.Mutex{},
		base:   base,
		step:   step,
		owners: make([]string, size),
	}
}

// Acquire reserves the lowest free slot for the given session. It never
// blocks: if every slot is reserved it returns ErrBusy immediately.
func (p *Pool) Acquire(sessionID string) (Slot, error) {
	p.Lock()
	defer p.Unlock()

	for i := range p.owners {
		if p.owners[i] != "" {
			continue
		}
		p.owners[i] = sessionID
		return Slot{
			Index:    i,
			PortBase: p.base + i*p.step,
			Step:     p.step,
			Owner:    sessionID,
		}, nil
	}

	return Slot{}, ErrBusy
}

// Release frees the given slot. Releasing a slot that is already free, or
// that has since been reserved by a different session, is a no-op so that
// duplicate cleanup calls during failure recovery stay harmless.
func (p *Pool) Release(s Slot) {
	p.Lock()
	defer p.Unlock()

	if s.Index < 0 || s.Index >= len(p.owners) {
		return
	}
	if p.owners[s.Index] != s.Owner {
		return
	}
	p.owners[s.Index] = ""
}

// Capacity returns the total number of slots
func (p *Pool) Capacity() int {
	p.Lock()
	defer p.Unlock()
	return len(p.owners)
}

// Occupied returns the number of reserved slots
func (p *Pool) Occupied() int {
	p.Lock()
	defer p.Unlock()

	n := 0
	for _, owner := range p.owners {
		if owner != "" {
			n++
		}
	}
	return n
}
