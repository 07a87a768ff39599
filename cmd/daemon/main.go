// Command daemon is the per-host voice/playback control process (spec §4):
// it owns the mixer connection, the resolver's executor/cache/scheduler,
// every live instance, and the Internal and Public HTTP surfaces.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yamba-project/yamba-daemon-go/internal/callback"
	"github.com/yamba-project/yamba-daemon-go/internal/config"
	"github.com/yamba-project/yamba-daemon-go/internal/daemonapi"
	"github.com/yamba-project/yamba-daemon-go/internal/instance"
	"github.com/yamba-project/yamba-daemon-go/internal/mixer"
	"github.com/yamba-project/yamba-daemon-go/internal/model"
	"github.com/yamba-project/yamba-daemon-go/internal/playback"
	"github.com/yamba-project/yamba-daemon-go/internal/registry"
	"github.com/yamba-project/yamba-daemon-go/internal/resolver"
	"github.com/yamba-project/yamba-daemon-go/internal/sink"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	mixerControl := mixer.New(mixer.NoopLoop{}, mixer.NewPactlBackend(cfg.MixerBinaryPath))
	if err := mixerControl.Connect(); err != nil {
		log.Fatalf("mixer connect: %v", err)
	}

	// A sink always exists so nothing glitches before the first instance
	// starts (spec §4.1 "default_sink").
	if _, err := sink.Create(mixerControl, cfg.DefaultSinkName); err != nil {
		log.Printf("default sink: %v", err)
	}

	executor, err := resolver.NewExecutor(cfg.ExtractorDir, cfg.ExtractorBinaryName, cfg.ExtractorVersionURL, cfg.ExtractorDownloadURL, cfg.ExtractorMinAudioBitrate)
	if err != nil {
		log.Fatalf("extractor init: %v", err)
	}
	if err := executor.UpdateDownloader(context.Background()); err != nil {
		log.Printf("extractor startup update: %v", err)
	}

	cache := resolver.NewCache(cfg.ResolverCacheTTL)
	defer cache.Close()

	scheduler := resolver.NewScheduler(cfg.ResolverWorkerCount, cfg.ResolverQueueCapacity, resolveURL(executor, cache, float64(cfg.ExtractorMinAudioBitrate)))
	defer scheduler.Close()

	updater := cron.New()
	if _, err := updater.AddFunc(every(cfg.ExtractorUpdateInterval), func() {
		if err := executor.UpdateDownloader(context.Background()); err != nil {
			log.Printf("extractor update: %v", err)
		}
	}); err != nil {
		log.Fatalf("extractor update schedule: %v", err)
	}
	updater.Start()
	defer updater.Stop()

	reg := registry.New(cfg.HeartbeatTimeout, cfg.HeartbeatCheckInterval)
	defer reg.Close()

	cb := callback.NewClient(cfg.ManagerCallbackBaseURL, cfg.ManagerSharedSecret)

	events := make(chan playback.Event, 64)
	stopDispatch := make(chan struct{})
	dispatcher := instance.NewEventDispatcher(reg, cb)
	go dispatcher.Run(events, stopDispatch)
	defer close(stopDispatch)

	deps := &daemonapi.Deps{
		Cfg:       cfg,
		Registry:  reg,
		Mixer:     mixerControl,
		Executor:  executor,
		Cache:     cache,
		Scheduler: scheduler,
		Callback:  cb,
		Events:    events,
	}

	publicSrv := &http.Server{
		Addr:              cfg.PublicListenAddr,
		Handler:           daemonapi.NewPublicRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	internalSrv := &http.Server{
		Addr:              cfg.InternalListenAddr,
		Handler:           daemonapi.NewInternalRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("public api listening on %s", cfg.PublicListenAddr)
		if err := publicSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("public api error: %v", err)
		}
	}()
	go func() {
		log.Printf("internal api listening on %s", cfg.InternalListenAddr)
		if err := internalSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("internal api error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	sig := <-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := publicSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("public api shutdown: %v", err)
	}
	if err := internalSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("internal api shutdown: %v", err)
	}

	// Tear every instance down so each reports Stopped and releases its
	// VoIP child and sinks before the process exits or re-execs.
	for _, id := range reg.List() {
		reg.Remove(id)
	}

	if sig == syscall.SIGHUP {
		restart()
	}
}

// resolveURL bridges the executor and cache into the scheduler's
// ResolveFunc: every track the extractor reports for url is given its best
// playable audio URL and written into the cache before the song is handed
// back, matching the upstream worker's resolve-then-cache-then-collect
// order.
func resolveURL(executor *resolver.Executor, cache *resolver.Cache, minBitrate float64) resolver.ResolveFunc {
	return func(ctx context.Context, url string) (resolver.Songs, error) {
		tracks, err := executor.GetPlaylistInfo(ctx, url)
		if err != nil {
			return nil, err
		}

		songs := make(resolver.Songs, 0, len(tracks))
		for _, track := range tracks {
			best, err := resolver.BestAudioFormat(track.Formats, minBitrate)
			if err != nil {
				log.Printf("no usable audio format for %q: %v", track.Title, err)
				continue
			}

			id := resolver.ComputeSongID(track.Extractor, track.Title, track.Uploader)
			cache.Upsert(id, best.URL)

			song := model.Song{ID: id, Name: track.Title, Source: track.Extractor}
			if track.Uploader != "" {
				uploader := track.Uploader
				song.Artist = &uploader
			}
			if track.Duration != nil {
				length := int(*track.Duration)
				song.Length = &length
			}
			songs = append(songs, song)
		}
		return songs, nil
	}
}

// every turns a plain interval into the "@every" cron spec robfig/cron
// expects.
func every(d time.Duration) string {
	return "@every " + d.String()
}

// restart re-execs the running binary with its original argv, the Go
// equivalent of the upstream daemon's SIGHUP-triggered restart.
func restart() {
	exe, err := os.Executable()
	if err != nil {
		log.Fatalf("restart: %v", err)
	}
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		log.Fatalf("restart exec: %v", err)
	}
}
