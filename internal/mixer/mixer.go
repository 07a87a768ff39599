// Package mixer presents a synchronous-looking surface over the OS audio
// daemon's single-threaded, callback-driven event loop (spec §4.1). Every
// operation submits a request and then drives the loop forward with
// non-blocking iterations until the completion it is waiting for arrives.
package mixer

import (
	"errors"
	"math"
	"sync"

	"github.com/yamba-project/yamba-daemon-go/internal/apperrors"
)

// InvalidSinkID is the sentinel the backend reports for a module id on
// load failure (undocumented upstream; observed on invalid parameters).
const InvalidSinkID = math.MaxUint32

// IterateResult is the outcome of one non-blocking pass of the event loop.
type IterateResult int

const (
	IterateSuccess IterateResult = iota
	IterateQuit
)

// Loop is the process-wide mixer event loop. A real implementation wraps
// the OS audio daemon's mainloop; fakeLoop (mixer_test.go) drives the tests.
type Loop interface {
	// Iterate performs one non-blocking pass, delivering any pending
	// completions to the callbacks that were armed via Backend. It returns
	// IterateQuit if the loop was asked to quit.
	Iterate() (IterateResult, error)
}

// ConnState mirrors the handshake states of the backend connection.
type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnReady
	ConnFailed
	ConnTerminated
)

// Backend is the async introspection surface of the OS audio daemon client.
// Every method arms a callback that Loop.Iterate will eventually invoke;
// Backend never blocks.
type Backend interface {
	ConnState() ConnState
	LoadModule(name, args string, cb func(id uint32))
	// SourceInfoList enumerates sources, invoking onItem per source and
	// onDone(err) once after the list is exhausted (err == nil) or failed.
	SourceInfoList(onItem func(sourceID, ownerModule uint32), onDone func(err error))
	MoveSourceOutputByIndex(processIndex, sourceID uint32, cb func(ok bool))
	MoveSinkInputByIndex(processIndex, sinkID uint32, cb func(ok bool))
	UnloadModule(moduleID uint32, cb func(ok bool))
}

// ErrUnavailable is not returned by Control: its loop quit/error failures
// are *apperrors.AppError values with code ErrorCodeMixerUnavailable.
var ErrUnavailable = errors.New("mixer unavailable")

func unavailable(detail string) *apperrors.AppError {
	return apperrors.NewAppError(apperrors.ErrorCodeMixerUnavailable, "mixer unavailable: "+detail, 503, nil)
}

// Control serializes every mixer operation behind one lock so that two
// operations can never interleave and race on the shared event loop
// (spec §4.1, §5 "callers must serialize against the mixer lock").
type Control struct {
	mu      sync.Mutex
	loop    Loop
	backend Backend
}

// New wraps a Loop and Backend pair in a Control.
func New(loop Loop, backend Backend) *Control {
	return &Control{loop: loop, backend: backend}
}

// Connect performs the initial handshake: iterate until the backend
// reaches Ready, or fail on Failed/Terminated (spec §4.1).
func (c *Control) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		switch c.backend.ConnState() {
		case ConnReady:
			return nil
		case ConnFailed:
			return unavailable("connection failed")
		case ConnTerminated:
			return unavailable("connection terminated")
		}
		if err := c.iterateLocked(); err != nil {
			return err
		}
	}
}

// iterateLocked assumes mu is held.
func (c *Control) iterateLocked() error {
	res, err := c.loop.Iterate()
	if err != nil {
		return unavailable(err.Error())
	}
	if res == IterateQuit {
		return unavailable("loop quit")
	}
	return nil
}

// driveLocked spins the loop until isDone reports true. Assumes mu is held.
func (c *Control) driveLocked(isDone func() bool) error {
	for !isDone() {
		if err := c.iterateLocked(); err != nil {
			return err
		}
	}
	return nil
}

// LoadModule loads a PA module synchronously from the caller's perspective.
func (c *Control) LoadModule(name, args string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var id uint32
	got := false
	c.backend.LoadModule(name, args, func(v uint32) {
		id = v
		got = true
	})
	if err := c.driveLocked(func() bool { return got }); err != nil {
		return 0, err
	}
	return id, nil
}

// MonitorForModule finds the source whose owner module equals moduleID
// (spec §4.2 "finds the one whose owner-module equals the just-loaded id").
func (c *Control) MonitorForModule(moduleID uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var found uint32
	hasFound := false
	finished := false
	var listErr error

	c.backend.SourceInfoList(
		func(sourceID, ownerModule uint32) {
			if ownerModule == moduleID {
				found = sourceID
				hasFound = true
			}
		},
		func(err error) {
			listErr = err
			finished = true
		},
	)
	if err := c.driveLocked(func() bool { return finished }); err != nil {
		return 0, err
	}
	if listErr != nil {
		return 0, unavailable(listErr.Error())
	}
	if !hasFound {
		return 0, apperrors.NewAppError(apperrors.ErrorCodeSinkLoadFailed, "no matching monitor found", 503, nil)
	}
	return found, nil
}

// MoveSourceOutput redirects a process's record-input to sourceID
// (spec §4.2 "set_monitor_for_process").
func (c *Control) MoveSourceOutput(processIndex, sourceID uint32) error {
	return c.moveOp(func(cb func(bool)) { c.backend.MoveSourceOutputByIndex(processIndex, sourceID, cb) })
}

// MoveSinkInput redirects a process's playback output to sinkID
// (spec §4.2 "set_sink_for_process").
func (c *Control) MoveSinkInput(processIndex, sinkID uint32) error {
	return c.moveOp(func(cb func(bool)) { c.backend.MoveSinkInputByIndex(processIndex, sinkID, cb) })
}

// UnloadModule unloads a previously-loaded module.
func (c *Control) UnloadModule(moduleID uint32) error {
	return c.moveOp(func(cb func(bool)) { c.backend.UnloadModule(moduleID, cb) })
}

// moveOp is the shared submit+drain shape for the boolean-result operations.
func (c *Control) moveOp(submit func(cb func(bool))) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ok bool
	done := false
	submit(func(v bool) {
		ok = v
		done = true
	})
	if err := c.driveLocked(func() bool { return done }); err != nil {
		return err
	}
	if !ok {
		return unavailable("operation rejected by audio daemon")
	}
	return nil
}
