package resolver

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yamba-project/yamba-daemon-go/internal/apperrors"
	"github.com/yamba-project/yamba-daemon-go/internal/model"
)

// Songs is what a resolve produces for one URL (possibly a playlist).
type Songs = []model.Song

// ResolveFunc runs the extractor for url and turns its tracks into Songs,
// writing resolved audio URLs into the cache as a side effect. The
// scheduler is agnostic to how resolution happens; this is its only
// dependency on the executor and cache.
type ResolveFunc func(ctx context.Context, url string) (Songs, error)

// Callback is invoked exactly once per request, on success, failure, or
// cancellation (spec §4.3 invariant), carrying the ticket DispatchResolve
// returned so the caller can correlate the completion without holding its
// own side table.
type Callback func(ticket uint64, songs Songs, err error)

type request struct {
	instanceID int
	url        string
	ticket     uint64
	callback   Callback
}

// instanceQueue is one instance's strict FIFO of pending requests.
type instanceQueue struct {
	pending []*request
	busy    bool
}

// Scheduler is the per-key fair multi-producer multi-consumer resolver pool
// described in spec §4.5: N workers round-robin across non-empty per-
// instance FIFOs, with single-flight per instance and bounded per-instance
// capacity.
type Scheduler struct {
	resolve  ResolveFunc
	capacity int

	mu        sync.Mutex
	cond      *sync.Cond
	queues    map[int]*instanceQueue
	order     []int // insertion order of instance ids, for round-robin
	closed    bool
	nextIndex int

	ticketSeq atomic.Uint64

	wg sync.WaitGroup
}

// NewScheduler starts a Scheduler with workerCount workers, each instance's
// queue bounded to capacity entries.
func NewScheduler(workerCount, capacity int, resolve ResolveFunc) *Scheduler {
	s := &Scheduler{
		resolve:  resolve,
		capacity: capacity,
		queues:   make(map[int]*instanceQueue),
	}
	s.cond = sync.NewCond(&s.mu)

	for i := 0; i < workerCount; i++ {
		s.wg.Add(1)
		go s.workerLoop()
	}
	return s
}

// DispatchResolve enqueues url under instanceID and returns its ticket, or
// QueueOverload if that instance's queue is already at capacity. A request
// that a worker is currently running counts toward the capacity.
func (s *Scheduler) DispatchResolve(instanceID int, url string, callback Callback) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, apperrors.NewInternalError("scheduler closed")
	}

	q, ok := s.queues[instanceID]
	if !ok {
		q = &instanceQueue{}
		s.queues[instanceID] = q
		s.order = append(s.order, instanceID)
	}
	held := len(q.pending)
	if q.busy {
		held++
	}
	if held >= s.capacity {
		return 0, apperrors.NewQueueOverloadError()
	}

	ticket := s.ticketSeq.Add(1) - 1
	q.pending = append(q.pending, &request{
		instanceID: instanceID,
		url:        url,
		ticket:     ticket,
		callback:   callback,
	})

	s.cond.Signal()
	return ticket, nil
}

// CancelInstance discards instanceID's queued requests, invoking each
// callback with Cancelled, and removes the instance from round-robin
// consideration (spec §4.5 "dropping an instance closes its sender").
func (s *Scheduler) CancelInstance(instanceID int) {
	s.mu.Lock()
	q, ok := s.queues[instanceID]
	if !ok {
		s.mu.Unlock()
		return
	}
	pending := q.pending
	q.pending = nil
	delete(s.queues, instanceID)
	s.order = removeInt(s.order, instanceID)
	s.mu.Unlock()

	cancelled := apperrors.NewAppError(apperrors.ErrorCodeCancelled, "instance removed", 0, nil)
	for _, req := range pending {
		req.callback(req.ticket, nil, cancelled)
	}
}

// Close stops accepting new work and waits for in-flight requests to drain.
// Queued-but-not-started requests across all instances are cancelled.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	ids := make([]int, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()

	for _, id := range ids {
		s.CancelInstance(id)
	}

	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

// workerLoop repeatedly claims the next non-busy, non-empty instance queue
// in round-robin order, runs its head request outside the lock, then marks
// the instance free again so another worker (or this one) may pick it up.
func (s *Scheduler) workerLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for {
			if s.closed && len(s.order) == 0 {
				s.mu.Unlock()
				return
			}
			if id, req, ok := s.claimNextLocked(); ok {
				s.mu.Unlock()
				s.run(id, req)
				break
			}
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.cond.Wait()
		}
	}
}

// claimNextLocked finds the next instance (starting from nextIndex, wrapping
// around) with a non-busy, non-empty queue, marks it busy, and pops its head
// request. Must be called with s.mu held.
func (s *Scheduler) claimNextLocked() (int, *request, bool) {
	n := len(s.order)
	for i := 0; i < n; i++ {
		idx := (s.nextIndex + i) % n
		id := s.order[idx]
		q := s.queues[id]
		if q == nil || q.busy || len(q.pending) == 0 {
			continue
		}
		req := q.pending[0]
		q.pending = q.pending[1:]
		q.busy = true
		s.nextIndex = (idx + 1) % n
		return id, req, true
	}
	return 0, nil, false
}

// run executes req outside the scheduler lock, then releases the instance's
// busy flag and wakes any waiting worker.
func (s *Scheduler) run(instanceID int, req *request) {
	songs, err := s.resolve(context.Background(), req.url)
	req.callback(req.ticket, songs, err)

	s.mu.Lock()
	if q, ok := s.queues[instanceID]; ok {
		q.busy = false
	}
	s.cond.Signal()
	s.mu.Unlock()
}

func removeInt(ids []int, target int) []int {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
