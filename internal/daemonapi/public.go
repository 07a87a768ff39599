package daemonapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yamba-project/yamba-daemon-go/internal/api"
	"github.com/yamba-project/yamba-daemon-go/internal/apperrors"
	"github.com/yamba-project/yamba-daemon-go/internal/model"
)

// NewPublicRouter builds the manager-facing surface (spec §4.11 "Public"),
// gated to requests from the configured peer IP.
func NewPublicRouter(deps *Deps) http.Handler {
	router := chi.NewRouter()
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(peerIPMiddleware(deps.Cfg.PeerIP))

	router.Method(http.MethodPost, "/instance/start", api.Handler(deps.handleInstanceStart))
	router.Method(http.MethodPost, "/instance/stop", api.Handler(deps.handleInstanceStop))
	router.Method(http.MethodGet, "/instance/list", api.Handler(deps.handleInstanceList))

	router.Method(http.MethodPost, "/playback/url", api.Handler(deps.handlePlaybackURL))
	router.Method(http.MethodPost, "/playback/pause", api.Handler(deps.handlePlaybackPause))
	router.Method(http.MethodGet, "/playback/state", api.Handler(deps.handlePlaybackState))

	router.Method(http.MethodPost, "/volume", api.Handler(deps.handleVolumeSet))
	router.Method(http.MethodGet, "/volume", api.Handler(deps.handleVolumeGet))

	router.Method(http.MethodGet, "/resolve/url", api.Handler(deps.handleResolveURL))

	return router
}

type instanceStartRequest struct {
	ID     int                `json:"id"`
	Volume float64            `json:"volume"`
	Data   model.InstanceType `json:"data"`
}

// handleInstanceStart spawns a new voice session (spec §6 "POST
// /instance/start"). Only the "ts" VoIP variant is implemented; any other
// tag is a validation failure, not a server error.
func (d *Deps) handleInstanceStart(w http.ResponseWriter, r *http.Request) error {
	var req instanceStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.NewValidationError("malformed body", nil)
	}
	if req.Data.Type != "ts" || req.Data.TS == nil {
		return apperrors.NewValidationError("unsupported instance type: "+req.Data.Type, nil)
	}
	if _, ok := d.Registry.Get(req.ID); ok {
		return api.WriteFailure(w, http.StatusOK, "instance already started")
	}

	if _, err := d.startInstance(req.ID, req.Volume, *req.Data.TS); err != nil {
		return api.WriteFailure(w, http.StatusOK, err.Error())
	}
	return api.WriteSuccess(w, http.StatusOK, "")
}

type instanceStopRequest struct {
	ID int `json:"id"`
}

// handleInstanceStop tears an instance down (spec §6 "POST
// /instance/stop"). Removing an id that is already gone is a success, not
// an error (spec §8 "remove is idempotent").
func (d *Deps) handleInstanceStop(w http.ResponseWriter, r *http.Request) error {
	var req instanceStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.NewValidationError("malformed body", nil)
	}
	d.Registry.Remove(req.ID)
	return api.WriteSuccess(w, http.StatusOK, "")
}

type instanceSummary struct {
	ID           int    `json:"id"`
	StartedAt    int64  `json:"started_at"`
	PlaybackInfo string `json:"playback_info"`
}

type instanceListResponse struct {
	Success   bool              `json:"success"`
	Instances []instanceSummary `json:"instances"`
}

// handleInstanceList reports every live instance's id, start time (Unix
// seconds), and playback info summary (spec §6 "GET /instance/list").
func (d *Deps) handleInstanceList(w http.ResponseWriter, r *http.Request) error {
	resp := instanceListResponse{Success: true, Instances: []instanceSummary{}}
	for _, id := range d.Registry.List() {
		inst, ok := d.lookupInstance(id)
		if !ok {
			continue
		}
		resp.Instances = append(resp.Instances, instanceSummary{
			ID:           id,
			StartedAt:    inst.StartedAt().Unix(),
			PlaybackInfo: inst.PlaybackInfo(),
		})
	}
	return api.WriteJSON(w, http.StatusOK, resp)
}

type playbackURLRequest struct {
	ID   int        `json:"id"`
	Song model.Song `json:"song"`
}

// handlePlaybackURL sets the current song and starts resolving it (spec
// §6 "POST /playback/url", §4.8 "play_track").
func (d *Deps) handlePlaybackURL(w http.ResponseWriter, r *http.Request) error {
	var req playbackURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.NewValidationError("malformed body", nil)
	}

	inst, ok := d.lookupInstance(req.ID)
	if !ok {
		return api.WriteFailure(w, http.StatusOK, "no such instance")
	}
	inst.PlayTrack(req.Song)
	return api.WriteSuccess(w, http.StatusOK, "")
}

type instanceIDRequest struct {
	ID int `json:"id"`
}

// handlePlaybackPause toggles play/pause (spec §6 "POST /playback/pause");
// there is no separate resume endpoint, so this flips whichever state the
// engine is currently in.
func (d *Deps) handlePlaybackPause(w http.ResponseWriter, r *http.Request) error {
	var req instanceIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.NewValidationError("malformed body", nil)
	}

	inst, ok := d.lookupInstance(req.ID)
	if !ok {
		return api.WriteFailure(w, http.StatusOK, "no such instance")
	}

	var err error
	if inst.GetPlaybackState() == model.PlaystatePlaying {
		err = inst.Pause()
	} else {
		err = inst.Play()
	}
	if err != nil {
		return apperrors.NewInternalError(err.Error())
	}
	return api.WriteSuccess(w, http.StatusOK, "")
}

type playbackStateResponse struct {
	Success bool   `json:"success"`
	State   string `json:"state,omitempty"`
	Info    string `json:"info,omitempty"`
	Msg     string `json:"msg,omitempty"`
}

// handlePlaybackState reports the current transport state and formatted
// position (spec §6 "GET /playback/state").
func (d *Deps) handlePlaybackState(w http.ResponseWriter, r *http.Request) error {
	id, err := parseIntQuery(r, "id")
	if err != nil {
		return apperrors.NewValidationError("id must be an integer", nil)
	}

	inst, ok := d.lookupInstance(id)
	if !ok {
		return api.WriteJSON(w, http.StatusOK, playbackStateResponse{Success: false, Msg: "no such instance"})
	}

	return api.WriteJSON(w, http.StatusOK, playbackStateResponse{
		Success: true,
		State:   playstateLabel(inst.GetPlaybackState()),
		Info:    inst.PlaybackInfo(),
	})
}

type volumeSetRequest struct {
	ID     int     `json:"id"`
	Volume float64 `json:"volume"`
}

// handleVolumeSet applies a new volume (spec §6 "POST /volume").
func (d *Deps) handleVolumeSet(w http.ResponseWriter, r *http.Request) error {
	var req volumeSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.NewValidationError("malformed body", nil)
	}

	inst, ok := d.lookupInstance(req.ID)
	if !ok {
		return api.WriteFailure(w, http.StatusOK, "no such instance")
	}
	if err := inst.SetVolume(req.Volume); err != nil {
		return apperrors.NewInternalError(err.Error())
	}
	return api.WriteSuccess(w, http.StatusOK, "")
}

type volumeGetResponse struct {
	Success bool     `json:"success"`
	Volume  *float64 `json:"volume,omitempty"`
	Msg     string   `json:"msg,omitempty"`
}

// handleVolumeGet reports the current volume (spec §6 "GET /volume").
func (d *Deps) handleVolumeGet(w http.ResponseWriter, r *http.Request) error {
	id, err := parseIntQuery(r, "id")
	if err != nil {
		return apperrors.NewValidationError("id must be an integer", nil)
	}

	inst, ok := d.lookupInstance(id)
	if !ok {
		return api.WriteJSON(w, http.StatusOK, volumeGetResponse{Success: false, Msg: "no such instance"})
	}
	volume := inst.GetVolume()
	return api.WriteJSON(w, http.StatusOK, volumeGetResponse{Success: true, Volume: &volume})
}

type resolveURLResponse struct {
	Success bool    `json:"success"`
	Ticket  *uint64 `json:"ticket,omitempty"`
	Msg     string  `json:"msg,omitempty"`
}

// handleResolveURL enqueues a bare URL on the named instance's fair resolve
// queue (spec §6 "GET /resolve/url", §4.5). Queue overload and an unknown
// instance both come back as a 4xx body, not a transport error, since the
// manager is expected to retry.
func (d *Deps) handleResolveURL(w http.ResponseWriter, r *http.Request) error {
	instanceID, err := parseIntQuery(r, "instance")
	if err != nil {
		return apperrors.NewValidationError("instance must be an integer", nil)
	}
	url := r.URL.Query().Get("url")
	if url == "" {
		return apperrors.NewValidationError("url is required", nil)
	}

	inst, ok := d.lookupInstance(instanceID)
	if !ok {
		return api.WriteJSON(w, http.StatusBadRequest, resolveURLResponse{Success: false, Msg: "no such instance"})
	}

	ticket, err := inst.DispatchResolve(url)
	if err != nil {
		appErr := apperrors.EnsureAppError(err)
		return api.WriteJSON(w, appErr.StatusCode, resolveURLResponse{Success: false, Msg: appErr.Message})
	}
	return api.WriteJSON(w, http.StatusOK, resolveURLResponse{Success: true, Ticket: &ticket})
}

func parseIntQuery(r *http.Request, key string) (int, error) {
	return strconv.Atoi(r.URL.Query().Get(key))
}

func playstateLabel(state model.Playstate) string {
	switch state {
	case model.PlaystatePlaying:
		return "playing"
	case model.PlaystatePaused:
		return "paused"
	case model.PlaystateEndOfMedia:
		return "end_of_media"
	default:
		return "stopped"
	}
}
