// Package voip supervises the external voice client child process an
// instance streams audio into (spec §4.7).
package voip

import (
	"fmt"
	"net/url"
	"os/exec"
	"strconv"
	"sync"

	"github.com/yamba-project/yamba-daemon-go/internal/model"
)

const (
	envCallback = "CALLBACK_YAMBA"
	envID       = "ID_YAMBA"
)

// Child supervises one spawned voice client process.
type Child struct {
	instanceID int

	mu     sync.Mutex
	cmd    *exec.Cmd
	killed bool
}

// Spawn launches the configured voice client binary for instanceID against
// settings, with CWD=installDir and the CALLBACK_YAMBA/ID_YAMBA environment
// the VoIP plugin reads to reach the Internal API (spec §4.7, §6 "Child
// process contract (VoIP)"). The real OS PID of the harness process
// started here is NOT necessarily the audio process's PID; the plugin
// reports its own PID back through InstanceStarted once connected.
func Spawn(binaryPath, installDir, callbackBaseURL string, instanceID int, settings model.TSSettings, extraArgs []string) (*Child, error) {
	args := append([]string{}, extraArgs...)
	args = append(args, "-nosingleinstance", buildServerArg(settings))

	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = installDir
	cmd.Env = append(cmd.Env,
		fmt.Sprintf("%s=%s", envCallback, callbackBaseURL),
		fmt.Sprintf("%s=%d", envID, instanceID),
	)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning voip child: %w", err)
	}

	return &Child{instanceID: instanceID, cmd: cmd}, nil
}

// buildServerArg builds the "<scheme>://<host>?<urlencoded params>" argument
// the voice client expects (spec §6): port, nickname, password, cid,
// percent-encoded.
func buildServerArg(settings model.TSSettings) string {
	values := url.Values{}
	if settings.Port != nil {
		values.Set("port", strconv.Itoa(*settings.Port))
	}
	values.Set("nickname", settings.Name)
	if settings.Password != nil {
		values.Set("password", *settings.Password)
	}
	if settings.CID != nil {
		values.Set("cid", strconv.FormatInt(int64(*settings.CID), 10))
	}
	return fmt.Sprintf("ts3server://%s?%s", settings.Host, values.Encode())
}

// Kill terminates the supervised process. Idempotent.
func (c *Child) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.killed || c.cmd == nil || c.cmd.Process == nil {
		return nil
	}
	c.killed = true
	return c.cmd.Process.Kill()
}

// HarnessPID is the harness process's own PID, distinct from the real
// audio-process PID the plugin later reports via InstanceStarted.
func (c *Child) HarnessPID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}
