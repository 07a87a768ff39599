package mixer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakePactlScript writes a fixture standing in for the real pactl binary,
// dispatching on its first argument (the pactl subcommand).
func fakePactlScript(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
case "$1" in
  info) echo "Server Name: fake"; exit 0 ;;
  load-module) echo 7 ;;
  list)
    cat <<'EOF'
Source #3
	Owner Module: 7
	Name: fake.monitor
EOF
    ;;
  move-source-output|move-sink-input|unload-module) exit 0 ;;
esac
`
	path := filepath.Join(t.TempDir(), "fakepactl.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestPactlBackendConnStateReady(t *testing.T) {
	b := NewPactlBackend(fakePactlScript(t))
	require.Equal(t, ConnReady, b.ConnState())
}

func TestPactlBackendConnStateFailedOnMissingBinary(t *testing.T) {
	b := NewPactlBackend(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Equal(t, ConnFailed, b.ConnState())
}

func TestPactlBackendLoadModuleReturnsParsedID(t *testing.T) {
	b := NewPactlBackend(fakePactlScript(t))
	var got uint32
	b.LoadModule("module-null-sink", "sink_properties=x", func(id uint32) { got = id })
	require.Equal(t, uint32(7), got)
}

func TestPactlBackendSourceInfoListParsesOwnerModule(t *testing.T) {
	b := NewPactlBackend(fakePactlScript(t))
	var sourceID, ownerModule uint32
	var doneErr error
	b.SourceInfoList(func(s, o uint32) { sourceID, ownerModule = s, o }, func(err error) { doneErr = err })
	require.NoError(t, doneErr)
	require.Equal(t, uint32(3), sourceID)
	require.Equal(t, uint32(7), ownerModule)
}

func TestPactlBackendMoveAndUnloadReportOK(t *testing.T) {
	b := NewPactlBackend(fakePactlScript(t))
	var ok bool
	b.MoveSourceOutputByIndex(1, 2, func(v bool) { ok = v })
	require.True(t, ok)
	b.MoveSinkInputByIndex(1, 2, func(v bool) { ok = v })
	require.True(t, ok)
	b.UnloadModule(7, func(v bool) { ok = v })
	require.True(t, ok)
}

func TestNoopLoopIterateAlwaysSucceeds(t *testing.T) {
	res, err := NoopLoop{}.Iterate()
	require.NoError(t, err)
	require.Equal(t, IterateSuccess, res)
}
