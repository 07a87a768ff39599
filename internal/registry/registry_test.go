package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeInstance struct {
	id     int
	closed bool
	mu     sync.Mutex
}

func (f *fakeInstance) ID() int { return f.id }
func (f *fakeInstance) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}
func (f *fakeInstance) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestAddAndGet(t *testing.T) {
	r := New(time.Hour, time.Hour)
	defer r.Close()

	inst := &fakeInstance{id: 1}
	r.Add(inst)

	got, ok := r.Get(1)
	require.True(t, ok)
	require.Equal(t, inst, got)
}

func TestRemoveClosesInstanceAndIsIdempotent(t *testing.T) {
	r := New(time.Hour, time.Hour)
	defer r.Close()

	inst := &fakeInstance{id: 1}
	r.Add(inst)

	r.Remove(1)
	require.True(t, inst.wasClosed())

	_, ok := r.Get(1)
	require.False(t, ok)

	require.NotPanics(t, func() { r.Remove(1) })
}

func TestListReturnsAllIDs(t *testing.T) {
	r := New(time.Hour, time.Hour)
	defer r.Close()

	r.Add(&fakeInstance{id: 1})
	r.Add(&fakeInstance{id: 2})

	ids := r.List()
	require.ElementsMatch(t, []int{1, 2}, ids)
}

func TestReaperEvictsStaleHeartbeat(t *testing.T) {
	r := New(20*time.Millisecond, 10*time.Millisecond)
	defer r.Close()

	inst := &fakeInstance{id: 1}
	r.Add(inst)

	require.Eventually(t, func() bool {
		_, ok := r.Get(1)
		return !ok
	}, time.Second, 5*time.Millisecond)

	require.True(t, inst.wasClosed())
}

func TestHeartbeatKeepsInstanceAlive(t *testing.T) {
	r := New(40*time.Millisecond, 10*time.Millisecond)
	defer r.Close()

	inst := &fakeInstance{id: 1}
	r.Add(inst)

	stop := time.After(150 * time.Millisecond)
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-time.After(15 * time.Millisecond):
			r.Heartbeat(1)
		}
	}

	_, ok := r.Get(1)
	require.True(t, ok, "instance with regular heartbeats must not be reaped")
}
