// Package config loads the daemon's runtime configuration from environment
// variables so the rest of the stack has somewhere to read its settings
// from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting the daemon's subsystems are wired from.
type Config struct {
	// PublicListenAddr serves the manager-facing API (spec §4.11 "Public").
	PublicListenAddr string
	// InternalListenAddr serves the VoIP-plugin-facing API (spec §4.11
	// "Internal"), loopback only.
	InternalListenAddr string

	// ManagerCallbackBaseURL is the base URL the callback client posts to.
	ManagerCallbackBaseURL string
	// ManagerSharedSecret is sent as the literal Authorization header value
	// on every outbound callback (spec §4.10).
	ManagerSharedSecret string
	// PeerIP is the only remote address allowed to reach the public API
	// (spec §4.11 "Authorization of inbound traffic is IP-based").
	PeerIP string

	// MixerBinaryPath is the pactl executable the mixer control shells out
	// to (spec §4.1). Empty resolves to "pactl" on PATH.
	MixerBinaryPath string
	// DefaultSinkName is the always-present sink created at startup to
	// avoid glitches/errors when no instance sink exists yet (spec §4.1
	// "default_sink").
	DefaultSinkName string

	// ExtractorDir holds the extractor executable and its backup.
	ExtractorDir string
	// ExtractorBinaryName is the file name of the extractor executable
	// inside ExtractorDir.
	ExtractorBinaryName string
	// ExtractorVersionURL serves the latest-version JSON (spec §4.4 step 1).
	ExtractorVersionURL string
	// ExtractorDownloadURL serves the extractor binary itself.
	ExtractorDownloadURL string
	// ExtractorUpdateInterval is the hours-scale interval on which the
	// updater task runs (spec §4.5).
	ExtractorUpdateInterval time.Duration
	// ExtractorMinAudioBitrate is min_bitrate for best_audio_format (spec §4.4).
	ExtractorMinAudioBitrate int

	// ResolverCacheTTL is the TTL of the resolved-URL cache (spec §4.3).
	ResolverCacheTTL time.Duration
	// ResolverWorkerCount is N, the resolver scheduler's worker pool size
	// (spec §4.5).
	ResolverWorkerCount int
	// ResolverQueueCapacity is the per-instance bounded sender capacity
	// (spec §4.5, "capacity 64").
	ResolverQueueCapacity int

	// HeartbeatTimeout is the liveness window the reaper enforces (spec §4.9).
	HeartbeatTimeout time.Duration
	// HeartbeatCheckInterval is how often the reaper sweeps (spec §4.9, "every 3s").
	HeartbeatCheckInterval time.Duration

	// VoIPBinaryPath is the external voice client executable (spec §4.7).
	VoIPBinaryPath string
	// VoIPInstallDir is the CWD the child is spawned with (spec §6).
	VoIPInstallDir string
	// VoIPExtraArgs are appended before the mandatory -nosingleinstance flag.
	VoIPExtraArgs []string

	// PlayerBinaryPath is the external media player spawned per instance
	// (spec §4.6).
	PlayerBinaryPath string
	// PlayerExtraArgs are appended to every spawned player invocation.
	PlayerExtraArgs []string

	// RetryMax bounds consecutive resolve retries for one song (spec §4.8).
	RetryMax int

	// InternalCallbackBaseURL is the value the VoIP child's CALLBACK_YAMBA
	// environment variable is set to, so the plugin can reach this
	// process's Internal API regardless of which interface it listens on
	// (spec §6 "Child process contract (VoIP)").
	InternalCallbackBaseURL string
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	cfg := Config{
		PublicListenAddr:         envString("PUBLIC_LISTEN_ADDR", "0.0.0.0:8080"),
		InternalListenAddr:       envString("INTERNAL_LISTEN_ADDR", "127.0.0.1:8081"),
		ManagerCallbackBaseURL:   envString("MANAGER_CALLBACK_BASE_URL", ""),
		ManagerSharedSecret:      envString("MANAGER_SHARED_SECRET", ""),
		PeerIP:                   envString("MANAGER_PEER_IP", "127.0.0.1"),
		MixerBinaryPath:          envString("MIXER_BINARY_PATH", ""),
		DefaultSinkName:          envString("DEFAULT_SINK_NAME", "yamba-default"),
		ExtractorDir:             envString("EXTRACTOR_DIR", "./data/extractor"),
		ExtractorBinaryName:      envString("EXTRACTOR_BINARY_NAME", "yt-dlp"),
		ExtractorVersionURL:      envString("EXTRACTOR_VERSION_URL", ""),
		ExtractorDownloadURL:     envString("EXTRACTOR_DOWNLOAD_URL", ""),
		ExtractorUpdateInterval:  envDuration("EXTRACTOR_UPDATE_INTERVAL", 6*time.Hour),
		ExtractorMinAudioBitrate: envInt("EXTRACTOR_MIN_AUDIO_BITRATE", 128),
		ResolverCacheTTL:         envDuration("RESOLVER_CACHE_TTL", 10*time.Minute),
		ResolverWorkerCount:      envInt("RESOLVER_WORKER_COUNT", 4),
		ResolverQueueCapacity:    envInt("RESOLVER_QUEUE_CAPACITY", 64),
		HeartbeatTimeout:         envDuration("HEARTBEAT_TIMEOUT", 3*time.Second),
		HeartbeatCheckInterval:   envDuration("HEARTBEAT_CHECK_INTERVAL", 3*time.Second),
		VoIPBinaryPath:           envString("VOIP_BINARY_PATH", ""),
		VoIPInstallDir:           envString("VOIP_INSTALL_DIR", "."),
		VoIPExtraArgs:            envCSV("VOIP_EXTRA_ARGS"),
		PlayerBinaryPath:         envString("PLAYER_BINARY_PATH", ""),
		PlayerExtraArgs:          envCSV("PLAYER_EXTRA_ARGS"),
		RetryMax:                 envInt("RETRY_MAX", 3),
		InternalCallbackBaseURL:  envString("INTERNAL_CALLBACK_BASE_URL", "http://127.0.0.1:8081"),
	}

	if strings.TrimSpace(cfg.ManagerSharedSecret) == "" {
		return Config{}, fmt.Errorf("MANAGER_SHARED_SECRET must be set")
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envCSV(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
