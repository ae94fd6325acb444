package slotpool

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_acquire_lowest_index_first(t *testing.T) {
	pool := NewPool(5000, 10, 3)

	s0, err := pool.Acquire("s0")
	require.NoError(t, err)
	require.Equal(t, 0, s0.Index)
	require.Equal(t, 5000, s0.PortBase)

	s1, err := pool.Acquire("s1")
	require.NoError(t, err)
	require.Equal(t, 1, s1.Index)
	require.Equal(t, 5010, s1.PortBase)

	// releasing the lowest slot makes it the next grant again
	pool.Release(s0)
	s2, err := pool.Acquire("s2")
	require.NoError(t, err)
	require.Equal(t, 0, s2.Index)
}

func Test_slot_ports(t *testing.T) {
	pool := NewPool(5000, 5, 2)

	s, err := pool.Acquire("s0")
	require.NoError(t, err)
	require.Equal(t, []int{5000, 5001, 5002, 5003, 5004}, s.Ports())

	s, err = pool.Acquire("s1")
	require.NoError(t, err)
	require.Equal(t, []int{5005, 5006, 5007, 5008, 5009}, s.Ports())
}

// up to capacity, concurrent acquisitions never share a slot; one past
// capacity always observes ErrBusy
func Test_concurrent_acquire_no_collision(t *testing.T) {
	capacity := 8
	pool := NewPool(5000, 10, capacity)

	var wg sync.WaitGroup
	slots := make(chan Slot, capacity+1)
	busy := make(chan error, capacity+1)

	for i := 0; i < capacity+1; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := pool.Acquire(fmt.Sprintf("session-%d", i))
			if err != nil {
				busy <- err
				return
			}
			slots <- s
		}(i)
	}
	wg.Wait()
	close(slots)
	close(busy)

	seen := map[int]bool{}
	for s := range slots {
		require.False(t, seen[s.Index], "slot %d granted twice", s.Index)
		seen[s.Index] = true
	}
	require.Equal(t, capacity, len(seen))

	nbusy := 0
	for err := range busy {
		require.ErrorIs(t, err, ErrBusy)
		nbusy++
	}
	require.Equal(t, 1, nbusy)
}

func Test_release_is_idempotent(t *testing.T) {
	pool := NewPool(5000, 10, 1)

	s, err := pool.Acquire("s0")
	require.NoError(t, err)

	pool.Release(s)
	pool.Release(s)
	require.Equal(t, 0, pool.Occupied())

	// a second session takes over the slot; the first session's stale
	// release must not free it
	s1, err := pool.Acquire("s1")
	require.NoError(t, err)
	pool.Release(s)
	require.Equal(t, 1, pool.Occupied())

	_, err = pool.Acquire("s2")
	require.ErrorIs(t, err, ErrBusy)

	pool.Release(s1)
	require.Equal(t, 0, pool.Occupied())
}

func Test_capacity_accounting(t *testing.T) {
	pool := NewPool(5000, 10, 4)
	require.Equal(t, 4, pool.Capacity())
	require.Equal(t, 0, pool.Occupied())

	s, err := pool.Acquire("s0")
	require.NoError(t, err)
	require.Equal(t, 1, pool.Occupied())

	pool.Release(s)
	require.Equal(t, 0, pool.Occupied())
}
