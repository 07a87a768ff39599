package instance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yamba-project/yamba-daemon-go/internal/model"
	"github.com/yamba-project/yamba-daemon-go/internal/playback"
)

func TestDispatcherAutoPlaysOnUriLoaded(t *testing.T) {
	in, engine, _, reg, cb := newTestInstanceFull(t, 20, "https://cdn.example/x.mp3")
	d := NewEventDispatcher(reg, cb)

	events := make(chan playback.Event, 1)
	stop := make(chan struct{})
	defer close(stop)
	go d.Run(events, stop)

	events <- playback.Event{InstanceID: 20, Kind: playback.EventUriLoaded}

	require.Eventually(t, func() bool { return engine.playCalls > 0 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherReportsPositionEvenForUnknownInstance(t *testing.T) {
	_, _, calls, reg, cb := newTestInstanceFull(t, 21, "https://cdn.example/x.mp3")
	d := NewEventDispatcher(reg, cb)

	events := make(chan playback.Event, 1)
	stop := make(chan struct{})
	defer close(stop)
	go d.Run(events, stop)

	events <- playback.Event{InstanceID: 9999, Kind: playback.EventPositionUpdated, Position: 5 * time.Second}

	require.Eventually(t, func() bool {
		return len(calls("/callback/position")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcherForcesRetryOnRetryableError(t *testing.T) {
	in, _, _, reg, cb := newTestInstanceFull(t, 22, "https://cdn.example/retry.mp3")
	song := model.Song{ID: "song-22", Name: "Err", Source: "https://example.com/src"}
	in.PlayTrack(song)
	require.Eventually(t, in.currentSongIsSet, time.Second, 5*time.Millisecond)

	d := NewEventDispatcher(reg, cb)
	events := make(chan playback.Event, 1)
	stop := make(chan struct{})
	defer close(stop)
	go d.Run(events, stop)

	events <- playback.Event{InstanceID: 22, Kind: playback.EventError, Err: playback.ErrorResourceNotFound}

	require.Eventually(t, func() bool {
		return in.retries.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcherStopsOnNonRetryableError(t *testing.T) {
	in, engine, _, reg, cb := newTestInstanceFull(t, 23, "https://cdn.example/fatal.mp3")
	song := model.Song{ID: "song-23", Name: "Fatal", Source: "https://example.com/src"}
	in.PlayTrack(song)
	require.Eventually(t, in.currentSongIsSet, time.Second, 5*time.Millisecond)

	d := NewEventDispatcher(reg, cb)
	events := make(chan playback.Event, 1)
	stop := make(chan struct{})
	defer close(stop)
	go d.Run(events, stop)

	events <- playback.Event{InstanceID: 23, Kind: playback.EventError, Err: playback.ErrorOther}

	require.Eventually(t, func() bool { return engine.stopCalls > 0 }, time.Second, 5*time.Millisecond)
}
