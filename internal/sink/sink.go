// Package sink implements the virtual audio sink (spec §4.2): one PA
// null-sink module plus its monitor source, owned exclusively by the
// returned value, with guaranteed unload.
package sink

import (
	"fmt"
	"log"
	"sync"

	"github.com/yamba-project/yamba-daemon-go/internal/apperrors"
	"github.com/yamba-project/yamba-daemon-go/internal/mixer"
)

// VirtualSink owns one sink id and its monitor source id, together with a
// shared handle to the mixer control. Two sinks never share an id: each is
// created from a fresh LoadModule call.
type VirtualSink struct {
	name    string
	id      uint32
	monitor uint32
	control *mixer.Control

	mu     sync.Mutex
	closed bool
}

// Create loads a null-sink module and resolves its monitor source. If the
// monitor cannot be found, the sink is unloaded before the error returns so
// no module is leaked (spec §4.2).
func Create(control *mixer.Control, name string) (*VirtualSink, error) {
	params := fmt.Sprintf("sink_properties=device.description=%s", name)

	id, err := control.LoadModule("module-null-sink", params)
	if err != nil {
		return nil, err
	}
	if id == mixer.InvalidSinkID {
		return nil, apperrors.NewAppError(apperrors.ErrorCodeSinkLoadFailed, "invalid sink id returned for "+name, 503, nil)
	}

	monitor, err := control.MonitorForModule(id)
	if err != nil {
		if unloadErr := control.UnloadModule(id); unloadErr != nil {
			log.Printf("[sink] unable to unload sink %d after monitor lookup failure: %v", id, unloadErr)
		}
		return nil, err
	}

	return &VirtualSink{name: name, id: id, monitor: monitor, control: control}, nil
}

// ID returns the sink's module id.
func (s *VirtualSink) ID() uint32 { return s.id }

// MonitorID returns the sink's monitor source id.
func (s *VirtualSink) MonitorID() uint32 { return s.monitor }

// SetMonitorForProcess redirects the given OS process's record-input to
// this sink's monitor.
func (s *VirtualSink) SetMonitorForProcess(pid uint32) error {
	return s.control.MoveSourceOutput(pid, s.monitor)
}

// SetSinkForProcess redirects the given OS process's playback output to
// this sink.
func (s *VirtualSink) SetSinkForProcess(pid uint32) error {
	return s.control.MoveSinkInput(pid, s.id)
}

// Close unconditionally unloads the sink. A failed unload is logged, never
// panics or propagates: the caller is tearing the sink down regardless.
func (s *VirtualSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.control.UnloadModule(s.id); err != nil {
		log.Printf("[sink] unable to delete sink %d: %v", s.id, err)
	}
	return nil
}
