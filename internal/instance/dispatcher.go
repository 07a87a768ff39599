package instance

import (
	"log"

	"github.com/yamba-project/yamba-daemon-go/internal/callback"
	"github.com/yamba-project/yamba-daemon-go/internal/playback"
	"github.com/yamba-project/yamba-daemon-go/internal/registry"
)

// EventDispatcher is the single consumer of the process-wide playback
// event channel, demultiplexing by InstanceID through the registry. This
// lives outside Instance and Engine because reacting to UriLoaded (with an
// auto-play) needs to look an instance up by id after the fact, something
// neither the engine nor the instance that owns it can do on their own
// (spec §4.6, §4.8).
type EventDispatcher struct {
	registry *registry.Registry
	cb       *callback.Client
}

// NewEventDispatcher builds a dispatcher over reg and cb. Both are shared
// across every instance; the dispatcher itself holds no per-instance
// state.
func NewEventDispatcher(reg *registry.Registry, cb *callback.Client) *EventDispatcher {
	return &EventDispatcher{registry: reg, cb: cb}
}

// Run drains events until it is closed or stop fires.
func (d *EventDispatcher) Run(events <-chan playback.Event, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.dispatch(ev)
		}
	}
}

// dispatch reacts to one event. PositionUpdated is reported unconditionally,
// even if the owning instance has already been reaped, since the manager
// still wants the last few updates to land; every other kind needs the
// live Instance to act on.
func (d *EventDispatcher) dispatch(ev playback.Event) {
	if ev.Kind == playback.EventPositionUpdated {
		d.cb.SendPositionUpdate(ev.InstanceID, ev.Position)
		return
	}

	regInst, ok := d.registry.Get(ev.InstanceID)
	if !ok {
		return
	}
	in, ok := regInst.(*Instance)
	if !ok {
		return
	}

	switch ev.Kind {
	case playback.EventUriLoaded:
		if err := in.Play(); err != nil {
			log.Printf("[instance %d] auto-play after uri loaded: %v", ev.InstanceID, err)
		}
	case playback.EventEndOfStream:
		in.EndOfStream()
	case playback.EventStateChanged:
		d.cb.SendPlaybackState(ev.InstanceID, ev.State)
	case playback.EventVolumeChanged:
		d.cb.SendVolumeChange(ev.InstanceID, ev.Volume)
	case playback.EventError:
		if ev.Err.Retryable() {
			if err := in.ForceSongRetry(); err != nil {
				log.Printf("[instance %d] retry after %s: %v", ev.InstanceID, ev.Err, err)
			}
			return
		}
		log.Printf("[instance %d] non-retryable playback error: %s", ev.InstanceID, ev.Err)
		if err := in.StopPlayback(); err != nil {
			log.Printf("[instance %d] stopping after fatal error: %v", ev.InstanceID, err)
		}
	}
}
