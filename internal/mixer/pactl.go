package mixer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// PactlBackend implements Backend by shelling out to pactl, the same
// "external binary, not a protocol binding" idiom the daemon already uses
// for the extractor and the VoIP client (no PulseAudio client library is
// available anywhere in the example pack). Every call is synchronous:
// pactl blocks until the audio daemon answers, so every callback fires
// before the triggering method returns, and NoopLoop never has anything
// to drain.
type PactlBackend struct {
	binary  string
	timeout time.Duration
}

// NewPactlBackend wraps the named pactl binary (normally "pactl", resolved
// from PATH).
func NewPactlBackend(binary string) *PactlBackend {
	if binary == "" {
		binary = "pactl"
	}
	return &PactlBackend{binary: binary, timeout: 5 * time.Second}
}

func (b *PactlBackend) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, b.binary, args...)
	cmd.Stdout = &stdout
	err := cmd.Run()
	return stdout.String(), err
}

// ConnState probes the daemon with "pactl info"; any failure to run or a
// non-zero exit means the daemon is unreachable.
func (b *PactlBackend) ConnState() ConnState {
	if _, err := b.run("info"); err != nil {
		return ConnFailed
	}
	return ConnReady
}

// LoadModule runs "pactl load-module <name> <args>", reporting the module
// index pactl prints on success.
func (b *PactlBackend) LoadModule(name, args string, cb func(id uint32)) {
	fields := append([]string{"load-module", name}, strings.Fields(args)...)
	out, err := b.run(fields...)
	id, parseErr := strconv.ParseUint(strings.TrimSpace(out), 10, 32)
	if err != nil || parseErr != nil {
		cb(InvalidSinkID)
		return
	}
	cb(uint32(id))
}

// SourceInfoList runs "pactl list sources" and scans each source's "Owner
// Module" line, pactl's verbose format being the only one that reports
// both a source's index and its owning module together.
func (b *PactlBackend) SourceInfoList(onItem func(sourceID, ownerModule uint32), onDone func(err error)) {
	out, err := b.run("list", "sources")
	if err != nil {
		onDone(fmt.Errorf("pactl list sources: %w", err))
		return
	}

	var currentID uint32
	haveID := false
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Source #"):
			id, parseErr := strconv.ParseUint(strings.TrimPrefix(trimmed, "Source #"), 10, 32)
			if parseErr == nil {
				currentID = uint32(id)
				haveID = true
			}
		case strings.HasPrefix(trimmed, "Owner Module:") && haveID:
			moduleID, parseErr := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(trimmed, "Owner Module:")), 10, 32)
			if parseErr == nil {
				onItem(currentID, uint32(moduleID))
			}
			haveID = false
		}
	}
	onDone(nil)
}

// MoveSourceOutputByIndex runs "pactl move-source-output".
func (b *PactlBackend) MoveSourceOutputByIndex(processIndex, sourceID uint32, cb func(ok bool)) {
	_, err := b.run("move-source-output", strconv.FormatUint(uint64(processIndex), 10), strconv.FormatUint(uint64(sourceID), 10))
	cb(err == nil)
}

// MoveSinkInputByIndex runs "pactl move-sink-input".
func (b *PactlBackend) MoveSinkInputByIndex(processIndex, sinkID uint32, cb func(ok bool)) {
	_, err := b.run("move-sink-input", strconv.FormatUint(uint64(processIndex), 10), strconv.FormatUint(uint64(sinkID), 10))
	cb(err == nil)
}

// UnloadModule runs "pactl unload-module".
func (b *PactlBackend) UnloadModule(moduleID uint32, cb func(ok bool)) {
	_, err := b.run("unload-module", strconv.FormatUint(uint64(moduleID), 10))
	cb(err == nil)
}

// NoopLoop satisfies Loop for a Backend whose callbacks always fire
// synchronously before the submitting method returns: there is never
// anything left to drain on a later Iterate pass.
type NoopLoop struct{}

// Iterate always reports success immediately.
func (NoopLoop) Iterate() (IterateResult, error) { return IterateSuccess, nil }
