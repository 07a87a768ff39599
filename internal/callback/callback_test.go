package callback

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yamba-project/yamba-daemon-go/internal/model"
)

type capturedRequest struct {
	path    string
	headers http.Header
	body    map[string]any
}

func newCapturingServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		mu.Lock()
		captured = append(captured, capturedRequest{path: r.URL.Path, headers: r.Header.Clone(), body: body})
		mu.Unlock()

		w.WriteHeader(status)
	}))
	return server, &captured, &mu
}

func TestSendInstanceStateSetsHeadersAndBody(t *testing.T) {
	server, captured, mu := newCapturingServer(t, http.StatusOK)
	defer server.Close()

	c := NewClient(server.URL, "sekret")
	c.SendInstanceState(7, model.InstanceStateRunning)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *captured, 1)
	req := (*captured)[0]
	require.Equal(t, pathInstance, req.path)
	require.Equal(t, "sekret", req.headers.Get("Authorization"))
	require.Equal(t, userAgent, req.headers.Get("User-Agent"))
	require.Equal(t, float64(7), req.body["id"])
	require.Equal(t, float64(model.InstanceStateRunning), req.body["state"])
}

func TestSendResolveResultIncludesTicketAndSongs(t *testing.T) {
	server, captured, mu := newCapturingServer(t, http.StatusOK)
	defer server.Close()

	c := NewClient(server.URL, "sekret")
	c.SendResolveResult(41, []model.Song{{ID: "abc", Name: "Track", Source: "https://x"}}, nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *captured, 1)
	req := (*captured)[0]
	require.Equal(t, pathResolve, req.path)
	require.Equal(t, float64(41), req.body["ticket"])
	require.Equal(t, true, req.body["success"])
}

func TestNonTwoXXResponseIsSwallowed(t *testing.T) {
	server, captured, mu := newCapturingServer(t, http.StatusInternalServerError)
	defer server.Close()

	c := NewClient(server.URL, "sekret")
	require.NotPanics(t, func() {
		c.SendPositionUpdate(1, 500*time.Millisecond)
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *captured, 1)
}

func TestUnreachableServerDoesNotPanic(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "sekret")
	require.NotPanics(t, func() {
		c.SendVolumeChange(1, 0.5)
	})
}
