// Package registry holds the live instance map and its heartbeat reaper
// (spec §4.9).
package registry

import (
	"log"
	"sync"
	"time"
)

// Instance is the minimal surface the registry and reaper need; the full
// aggregator lives in package instance, which satisfies this interface.
type Instance interface {
	ID() int
	Close()
}

// Registry is the RWMutex-protected instance map every inbound API handler
// and the playback event dispatcher look instances up in.
type Registry struct {
	mu        sync.RWMutex
	instances map[int]Instance

	heartbeatMu sync.Mutex
	heartbeats  map[int]time.Time

	timeout       time.Duration
	checkInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// New creates a Registry whose reaper sweeps every checkInterval, evicting
// any instance whose last heartbeat is older than timeout (spec §4.9,
// "every 3s").
func New(timeout, checkInterval time.Duration) *Registry {
	r := &Registry{
		instances:     make(map[int]Instance),
		heartbeats:    make(map[int]time.Time),
		timeout:       timeout,
		checkInterval: checkInterval,
		stop:          make(chan struct{}),
	}
	r.wg.Add(1)
	go r.reapLoop()
	return r
}

// Add registers inst and starts its heartbeat clock.
func (r *Registry) Add(inst Instance) {
	r.mu.Lock()
	r.instances[inst.ID()] = inst
	r.mu.Unlock()
	r.Heartbeat(inst.ID())
}

// Get looks up an instance by id. The returned Instance is owned by the
// registry; callers must not retain it past the lock scope implied by
// Remove running concurrently (spec §9 "owning-reference-from-guard").
func (r *Registry) Get(id int) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// List returns every live instance id.
func (r *Registry) List() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	return ids
}

// Remove evicts id, closing its Instance and clearing its heartbeat entry.
// Idempotent: removing an already-gone id is a no-op (spec §8 invariant).
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	inst, ok := r.instances[id]
	delete(r.instances, id)
	r.mu.Unlock()

	r.heartbeatMu.Lock()
	delete(r.heartbeats, id)
	r.heartbeatMu.Unlock()

	if ok {
		inst.Close()
	}
}

// Heartbeat records that id is still alive.
func (r *Registry) Heartbeat(id int) {
	r.heartbeatMu.Lock()
	defer r.heartbeatMu.Unlock()
	r.heartbeats[id] = time.Now()
}

// reapLoop periodically removes instances whose heartbeat has gone stale.
func (r *Registry) reapLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reapOnce()
		case <-r.stop:
			return
		}
	}
}

func (r *Registry) reapOnce() {
	r.heartbeatMu.Lock()
	stale := make([]int, 0)
	for id, last := range r.heartbeats {
		if time.Since(last) >= r.timeout {
			stale = append(stale, id)
		}
	}
	r.heartbeatMu.Unlock()

	for _, id := range stale {
		log.Printf("registry: evicting instance %d, heartbeat timeout", id)
		r.Remove(id)
	}
}

// Close stops the reaper. It does not remove any instance.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}
