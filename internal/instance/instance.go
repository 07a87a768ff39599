// Package instance implements the per-voice-session aggregator (spec §4.8):
// one VoIP handle, one pair of virtual sinks, one playback engine, and the
// retry policy that ties a resolve failure back into a fresh resolve.
package instance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/yamba-project/yamba-daemon-go/internal/apperrors"
	"github.com/yamba-project/yamba-daemon-go/internal/callback"
	"github.com/yamba-project/yamba-daemon-go/internal/model"
	"github.com/yamba-project/yamba-daemon-go/internal/playback"
	"github.com/yamba-project/yamba-daemon-go/internal/registry"
	"github.com/yamba-project/yamba-daemon-go/internal/resolver"
	"github.com/yamba-project/yamba-daemon-go/internal/sink"
	"github.com/yamba-project/yamba-daemon-go/internal/voip"
)

// Teamspeak bundles one VoIP child with the sink pair the mixer routes its
// record and playback streams through (spec §4.8 "Teamspeak" variant). It is
// the only VoIP handle type; Instance holds it directly.
type Teamspeak struct {
	Child    *voip.Child
	Sink     *sink.VirtualSink
	MuteSink *sink.VirtualSink
}

// OnConnected wires the now-known audio process pid into both sinks: its
// record-input is monitored from Sink, and its playback output is routed
// into MuteSink so the VoIP client never hears its own injected audio
// (spec §4.2, §4.8 "connected(pid)").
func (t *Teamspeak) OnConnected(pid uint32) error {
	if err := t.Sink.SetMonitorForProcess(pid); err != nil {
		return err
	}
	return t.MuteSink.SetSinkForProcess(pid)
}

// Close releases the VoIP child and both sinks, in that order, so the
// process is gone before its sinks are torn out from under it.
func (t *Teamspeak) Close() {
	if err := t.Child.Kill(); err != nil {
		log.Printf("[instance] killing voip child: %v", err)
	}
	if err := t.Sink.Close(); err != nil {
		log.Printf("[instance] closing sink: %v", err)
	}
	if err := t.MuteSink.Close(); err != nil {
		log.Printf("[instance] closing mute sink: %v", err)
	}
}

// Instance aggregates one voice session's VoIP handle, playback pipeline,
// and resolve state (spec §4.8). It satisfies registry.Instance.
type Instance struct {
	id int

	voip      *Teamspeak
	engine    playback.Pipeline
	executor  *resolver.Executor
	cache     *resolver.Cache
	scheduler *resolver.Scheduler
	cb        *callback.Client

	// registryRef lets a background resolve goroutine check the instance is
	// still registered before handing a resolved URI to the engine, without
	// keeping the registry itself alive past its own Close (spec §4.8
	// "weak reference to the registry").
	registryRef weak.Pointer[registry.Registry]

	retryMax int
	retries  atomic.Int32

	startedAt time.Time

	mu          sync.Mutex
	state       model.InstanceState
	currentSong *model.Song
	closed      bool
}

// New creates an Instance in InstanceStateStarted. Its retry counter starts
// at zero and its current song is unset until PlayTrack is first called.
// reg is the registry the instance is about to be Add-ed to; a weak handle
// to it is kept so background resolves can check they're still wanted.
func New(id int, ts *Teamspeak, engine playback.Pipeline, executor *resolver.Executor, cache *resolver.Cache, scheduler *resolver.Scheduler, cb *callback.Client, reg *registry.Registry, retryMax int) *Instance {
	return &Instance{
		id:          id,
		voip:        ts,
		engine:      engine,
		executor:    executor,
		cache:       cache,
		scheduler:   scheduler,
		cb:          cb,
		registryRef: weak.Make(reg),
		retryMax:    retryMax,
		state:       model.InstanceStateStarted,
		startedAt:   time.Now(),
	}
}

// ID satisfies registry.Instance.
func (in *Instance) ID() int { return in.id }

// StartedAt reports when this instance was created, for the manager's
// "how long has this instance been up" bookkeeping.
func (in *Instance) StartedAt() time.Time { return in.startedAt }

// Connected transitions the instance to Running once the VoIP child has
// reported its real audio-process pid, routing that process through both
// sinks (spec §4.8 "connected(pid)").
func (in *Instance) Connected(pid uint32) error {
	if err := in.voip.OnConnected(pid); err != nil {
		return err
	}

	in.mu.Lock()
	in.state = model.InstanceStateRunning
	in.mu.Unlock()

	in.cb.SendInstanceState(in.id, model.InstanceStateRunning)
	return nil
}

// DispatchResolve enqueues a resolve for url on this instance's fair queue
// (spec §4.5), reporting the result to the manager via callback once it
// completes. It does not touch currentSong or the playback engine: that is
// PlayTrack's job.
func (in *Instance) DispatchResolve(url string) (uint64, error) {
	return in.scheduler.DispatchResolve(in.id, url, func(ticket uint64, songs resolver.Songs, err error) {
		in.cb.SendResolveResult(ticket, songs, err)
	})
}

// PlayTrack sets song as current and resolves its playable URL in the
// background, independent of the fair resolver queue: a manager-initiated
// play is not subject to per-instance backpressure the way a bulk resolve
// is (spec §4.8 "play_track"). The cache is consulted first; a miss falls
// through to the extractor, keyed by song.ID rather than anything the
// extractor derives on its own.
func (in *Instance) PlayTrack(song model.Song) {
	in.mu.Lock()
	in.currentSong = &song
	in.mu.Unlock()

	in.cb.SendSong(in.id, song)
	go in.resolveAndPlay(song, false)
}

// resolveAndPlay is play_track_inner: it looks up the cache, falls back to
// the extractor on a miss, and only then loads the engine's URI. retry
// indicates this is a force_song_retry re-resolve rather than the initial
// attempt: its success must NOT clear the retry counter, or a retry budget
// could never be exhausted (each retry's own resolve would keep resetting
// it back to zero).
func (in *Instance) resolveAndPlay(song model.Song, retry bool) {
	if cached, ok := in.cache.Get(song.ID); ok {
		if !retry {
			in.resetRetries()
		}
		in.setURIIfStillCurrent(song.ID, cached)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, format, err := in.executor.GetURLInfo(ctx, song.Source)
	if err != nil {
		log.Printf("[instance %d] resolving %q (retry=%v): %v", in.id, song.Source, retry, err)
		return
	}

	in.cache.Upsert(song.ID, format.URL)
	if !retry {
		in.resetRetries()
	}
	in.setURIIfStillCurrent(song.ID, format.URL)
}

// setURIIfStillCurrent guards against two races a background resolve can
// lose: a newer song replacing currentSong while it was in flight, or the
// instance being torn down and removed from the registry entirely. Either
// way the resolved URL is dropped rather than handed to a stale engine.
func (in *Instance) setURIIfStillCurrent(songID, uri string) {
	in.mu.Lock()
	stillCurrent := in.currentSong != nil && in.currentSong.ID == songID
	in.mu.Unlock()
	if !stillCurrent {
		return
	}

	if reg := in.registryRef.Value(); reg != nil {
		if _, ok := reg.Get(in.id); !ok {
			return
		}
	}

	if err := in.engine.SetURI(uri); err != nil {
		log.Printf("[instance %d] setting uri: %v", in.id, err)
	}
}

// StopPlayback clears currentSong and stops the engine. It posts no callback
// of its own; if a player process was running, the engine's Stopped state
// change reaches the manager through the event dispatcher like any other.
func (in *Instance) StopPlayback() error {
	in.mu.Lock()
	in.currentSong = nil
	in.mu.Unlock()
	return in.engine.Stop()
}

// EndOfStream reports EndOfMedia to the manager, but only if a song was
// still current when the engine reported it: an explicit Stop also races
// the engine's own watcher, and this is the documented tie-break (spec §9
// open question (b), resolved in favor of the source's existing
// behavior — conflating the two cases rather than distinguishing them).
func (in *Instance) EndOfStream() {
	in.mu.Lock()
	song := in.currentSong
	in.currentSong = nil
	in.mu.Unlock()

	if song == nil {
		return
	}
	in.cb.SendPlaybackState(in.id, model.PlaystateEndOfMedia)
}

// ForceSongRetry evicts the current song's cached URL and re-resolves it,
// capped at retryMax consecutive attempts (spec §4.8 "force_song_retry").
// Called from the process-wide playback event dispatcher when the engine
// reports a retryable error.
func (in *Instance) ForceSongRetry() error {
	in.mu.Lock()
	song := in.currentSong
	in.mu.Unlock()

	if song == nil {
		return apperrors.NewNotFoundError("no current song to retry", nil)
	}

	if int(in.retries.Add(1)) > in.retryMax {
		return apperrors.NewMaxRetriesError()
	}

	in.cache.Evict(song.ID)
	go in.resolveAndPlay(*song, true)
	return nil
}

// resetRetries clears the retry counter; called whenever a resolve
// succeeds without having been triggered by ForceSongRetry, mirroring the
// source's "reset on success, not on every play_track" policy.
func (in *Instance) resetRetries() {
	in.retries.Store(0)
}

// Pause, Play, SetVolume, and GetVolume delegate straight to the engine.
// The resulting state/volume-changed events reach the manager through the
// process-wide event dispatcher, not a direct callback call here: the
// engine emits the same events whether triggered this way or by the
// player process itself, and the dispatcher is the single place that
// turns those events into callbacks (spec §4.6, §4.8).
func (in *Instance) Pause() error              { return in.engine.Pause() }
func (in *Instance) Play() error               { return in.engine.Play() }
func (in *Instance) SetVolume(v float64) error { return in.engine.SetVolume(v) }
func (in *Instance) GetVolume() float64        { return in.engine.GetVolume() }

// GetPlaybackState reports the engine's transport state.
func (in *Instance) GetPlaybackState() model.Playstate { return in.engine.GetState() }

// PlaybackInfo renders the manager-facing "<title>[ - <artist>] MM:SS /
// MM:SS[ -paused-]" summary string, falling back to "--:--" when the
// current song's length is unknown, or to the literal "Playback ended"
// when no song is current (spec §4.8 "playback_info()").
func (in *Instance) PlaybackInfo() string {
	in.mu.Lock()
	song := in.currentSong
	in.mu.Unlock()

	if song == nil {
		return "Playback ended"
	}

	artist := ""
	if song.Artist != nil {
		artist = " - " + *song.Artist
	}
	length := "--:--"
	if song.Length != nil {
		length = formatTime(time.Duration(*song.Length) * time.Second)
	}
	position := formatTime(in.engine.GetPosition())

	info := fmt.Sprintf("%s%s %s / %s", song.Name, artist, position, length)
	if in.engine.IsPaused() {
		info += " -paused-"
	}
	return info
}

func formatTime(d time.Duration) string {
	if d < 0 {
		return "--:--"
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Close cancels the instance's queued resolves, stops the engine, reports
// Stopped, then releases the VoIP handle and sinks: the audio process and
// its sinks must outlive the Stopped callback so a late position/volume
// report can't race a torn-down sink
// (spec §4.8 "Drop" ordering). Idempotent.
func (in *Instance) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	in.mu.Unlock()

	in.scheduler.CancelInstance(in.id)
	if err := in.engine.Close(); err != nil {
		log.Printf("[instance %d] closing engine: %v", in.id, err)
	}
	in.cb.SendInstanceState(in.id, model.InstanceStateStopped)
	in.voip.Close()
}
