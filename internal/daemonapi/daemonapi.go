// Package daemonapi wires the Internal and Public inbound HTTP surfaces
// (spec §4.11): the VoIP plugin's loopback-only callback endpoints, and the
// manager's control-plane endpoints for starting/stopping instances,
// driving playback, and enqueueing resolves.
package daemonapi

import (
	"fmt"

	"github.com/yamba-project/yamba-daemon-go/internal/callback"
	"github.com/yamba-project/yamba-daemon-go/internal/config"
	"github.com/yamba-project/yamba-daemon-go/internal/instance"
	"github.com/yamba-project/yamba-daemon-go/internal/mixer"
	"github.com/yamba-project/yamba-daemon-go/internal/model"
	"github.com/yamba-project/yamba-daemon-go/internal/playback"
	"github.com/yamba-project/yamba-daemon-go/internal/registry"
	"github.com/yamba-project/yamba-daemon-go/internal/resolver"
	"github.com/yamba-project/yamba-daemon-go/internal/sink"
	"github.com/yamba-project/yamba-daemon-go/internal/voip"
)

// Deps bundles every subsystem the inbound API handlers need. A single
// Deps value is shared across the internal and public routers: both speak
// to the same registry and the same instance-construction path.
type Deps struct {
	Cfg       config.Config
	Registry  *registry.Registry
	Mixer     *mixer.Control
	Executor  *resolver.Executor
	Cache     *resolver.Cache
	Scheduler *resolver.Scheduler
	Callback  *callback.Client
	Events    chan<- playback.Event
}

// startInstance spawns the VoIP child, loads its sink pair, builds its
// playback engine, and registers the resulting Instance (spec §4.8 "new",
// §4.2, §4.7). The instance is added to the registry before this returns,
// so a heartbeat or a playback request racing the HTTP response already
// finds it.
func (d *Deps) startInstance(id int, volume float64, ts model.TSSettings) (*instance.Instance, error) {
	sinkName := fmt.Sprintf("yamba-sink-%d", id)
	muteSinkName := fmt.Sprintf("yamba-mute-%d", id)

	voiceSink, err := sink.Create(d.Mixer, sinkName)
	if err != nil {
		return nil, fmt.Errorf("creating sink: %w", err)
	}
	muteSink, err := sink.Create(d.Mixer, muteSinkName)
	if err != nil {
		_ = voiceSink.Close()
		return nil, fmt.Errorf("creating mute sink: %w", err)
	}

	child, err := voip.Spawn(d.Cfg.VoIPBinaryPath, d.Cfg.VoIPInstallDir, d.Cfg.InternalCallbackBaseURL, id, ts, d.Cfg.VoIPExtraArgs)
	if err != nil {
		_ = voiceSink.Close()
		_ = muteSink.Close()
		return nil, fmt.Errorf("spawning voip child: %w", err)
	}

	tsHandle := &instance.Teamspeak{Child: child, Sink: voiceSink, MuteSink: muteSink}
	engine := playback.NewEngine(id, d.Cfg.PlayerBinaryPath, d.Cfg.PlayerExtraArgs, d.Events)

	inst := instance.New(id, tsHandle, engine, d.Executor, d.Cache, d.Scheduler, d.Callback, d.Registry, d.Cfg.RetryMax)
	if err := inst.SetVolume(volume); err != nil {
		inst.Close()
		return nil, fmt.Errorf("setting initial volume: %w", err)
	}

	d.Registry.Add(inst)
	return inst, nil
}
