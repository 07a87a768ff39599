package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sha256Hex(t *testing.T, data []byte) string {
	t.Helper()
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestNewExecutorCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "extractor")
	e, err := NewExecutor(dir, "yt-dlp", "", "", 128)
	require.NoError(t, err)
	require.NotNil(t, e)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestCheckSHA256MatchesContent(t *testing.T) {
	dir := t.TempDir()
	e, err := NewExecutor(dir, "yt-dlp", "", "", 128)
	require.NoError(t, err)

	content := []byte("fake-binary-contents")
	require.NoError(t, os.WriteFile(e.binaryPath(), content, 0o644))

	ok, err := e.checkSHA256(sha256Hex(t, content))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.checkSHA256("deadbeef")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetPermissionsAppliesExpectedMode(t *testing.T) {
	dir := t.TempDir()
	e, err := NewExecutor(dir, "yt-dlp", "", "", 128)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.binaryPath(), []byte("x"), 0o600))

	require.NoError(t, e.setPermissions())

	info, err := os.Stat(e.binaryPath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(binaryPermissions), info.Mode().Perm())
}

func newVersionServer(t *testing.T, version string, binaryContent []byte) *httptest.Server {
	t.Helper()
	hash := sha256Hex(t, binaryContent)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/version":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"latest":"` + version + `","versions":{"` + version + `":{"bin":["yt-dlp","` + hash + `"]}}}`))
		case "/download":
			_, _ = w.Write(binaryContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestUpdateDownloaderDownloadsWhenMissing(t *testing.T) {
	binaryContent := []byte("new-binary-payload")
	server := newVersionServer(t, "2026.07.01", binaryContent)
	defer server.Close()

	dir := t.TempDir()
	e, err := NewExecutor(dir, "yt-dlp", server.URL+"/version", server.URL+"/download", 128)
	require.NoError(t, err)

	require.NoError(t, e.UpdateDownloader(context.Background()))

	got, err := os.ReadFile(e.binaryPath())
	require.NoError(t, err)
	require.Equal(t, binaryContent, got)

	info, err := os.Stat(e.binaryPath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(binaryPermissions), info.Mode().Perm())
}

func TestUpdateDownloaderSkipsReDownloadWhenHashMatches(t *testing.T) {
	binaryContent := []byte("#!/bin/sh\necho 2026.07.01\n")
	server := newVersionServer(t, "2026.07.01", binaryContent)
	defer server.Close()

	dir := t.TempDir()
	e, err := NewExecutor(dir, "yt-dlp", server.URL+"/version", server.URL+"/download", 128)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.binaryPath(), binaryContent, binaryPermissions))

	e.currentVersionOverride = "2026.07.01"

	require.NoError(t, e.UpdateDownloader(context.Background()))

	got, err := os.ReadFile(e.binaryPath())
	require.NoError(t, err)
	require.Equal(t, binaryContent, got)
}

func TestUpdateDownloaderRestoresBackupOnFailedDownload(t *testing.T) {
	goodContent := []byte("still-good-binary")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/version":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"latest":"2026.08.01","versions":{"2026.08.01":{"bin":["yt-dlp","deadbeef"]}}}`))
		case "/download":
			_, _ = w.Write([]byte("corrupted-payload"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	e, err := NewExecutor(dir, "yt-dlp", server.URL+"/version", server.URL+"/download", 128)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.binaryPath(), goodContent, binaryPermissions))
	e.currentVersionOverride = "2026.07.01"

	err = e.UpdateDownloader(context.Background())
	require.Error(t, err)

	got, readErr := os.ReadFile(e.binaryPath())
	require.NoError(t, readErr)
	require.Equal(t, goodContent, got, "backup must be restored after a failed download")
}
