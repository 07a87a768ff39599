// Package callback implements the outbound HTTP client the daemon uses to
// notify the manager of state changes (spec §4.10).
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/yamba-project/yamba-daemon-go/internal/model"
)

const userAgent = "YAMBA v1"

const (
	pathInstance = "/callback/instance"
	pathResolve  = "/callback/resolve"
	pathPlayback = "/callback/playback"
	pathSong     = "/callback/song"
	pathVolume   = "/callback/volume"
	pathPosition = "/callback/position"
)

type instanceStateBody struct {
	ID    int                 `json:"id"`
	State model.InstanceState `json:"state"`
}

type playstateBody struct {
	ID    int             `json:"id"`
	State model.Playstate `json:"state"`
}

type volumeChangeBody struct {
	ID     int     `json:"id"`
	Volume float64 `json:"volume"`
}

type positionBody struct {
	ID         int   `json:"id"`
	PositionMS int64 `json:"position_ms"`
}

// ResolveResponse is posted to the manager once a scheduled resolve
// completes, successfully or not (spec §3 "ResolveResponse").
type ResolveResponse struct {
	Success bool         `json:"success"`
	Msg     *string      `json:"msg,omitempty"`
	Songs   []model.Song `json:"songs"`
	Ticket  uint64       `json:"ticket"`
}

// Client posts state-change notifications to the manager. Every request
// carries the same two headers; failures are logged and swallowed, since a
// dropped callback must never block or fail the caller's own operation
// (spec §4.10 "swallow non-2xx").
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
}

// NewClient builds a Client posting to baseURL with the given shared secret
// sent verbatim as the Authorization header.
func NewClient(baseURL, sharedSecret string) *Client {
	return &Client{
		baseURL:    baseURL,
		authHeader: sharedSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) post(path string, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Printf("callback: encoding %s body: %v", path, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		log.Printf("callback: building request to %s: %v", path, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("callback: posting to %s: %v", path, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("callback: %s returned %s", path, resp.Status)
	}
}

// SendInstanceState reports an instance lifecycle transition.
func (c *Client) SendInstanceState(id int, state model.InstanceState) {
	c.post(pathInstance, instanceStateBody{ID: id, State: state})
}

// SendPlaybackState reports a transport-state change.
func (c *Client) SendPlaybackState(id int, state model.Playstate) {
	c.post(pathPlayback, playstateBody{ID: id, State: state})
}

// SendVolumeChange reports a volume change caused by set_volume.
func (c *Client) SendVolumeChange(id int, volume float64) {
	c.post(pathVolume, volumeChangeBody{ID: id, Volume: volume})
}

// SendPositionUpdate reports the current playback position.
func (c *Client) SendPositionUpdate(id int, position time.Duration) {
	c.post(pathPosition, positionBody{ID: id, PositionMS: position.Milliseconds()})
}

// SendSong reports the song that became current for an instance.
func (c *Client) SendSong(id int, song model.Song) {
	c.post(pathSong, struct {
		ID   int        `json:"id"`
		Song model.Song `json:"song"`
	}{ID: id, Song: song})
}

// SendResolveResult reports the outcome of a scheduled resolve.
func (c *Client) SendResolveResult(ticket uint64, songs []model.Song, err error) {
	resp := ResolveResponse{Success: err == nil, Songs: songs, Ticket: ticket}
	if err != nil {
		msg := err.Error()
		resp.Msg = &msg
	}
	c.post(pathResolve, resp)
}
