package daemonapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yamba-project/yamba-daemon-go/internal/api"
	"github.com/yamba-project/yamba-daemon-go/internal/apperrors"
	"github.com/yamba-project/yamba-daemon-go/internal/instance"
)

type startedRequest struct {
	ID  int    `json:"id"`
	PID uint32 `json:"pid"`
}

type heartbeatRequest struct {
	ID int `json:"id"`
}

// NewInternalRouter builds the loopback-only surface the VoIP plugin talks
// to (spec §4.11 "Internal"). It carries no IP allowlist of its own beyond
// the listener address it is served on: the plugin is a local child
// process, not a network peer.
func NewInternalRouter(deps *Deps) http.Handler {
	router := chi.NewRouter()
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)

	router.Method(http.MethodPost, "/internal/started", api.Handler(deps.handleStarted))
	router.Method(http.MethodPost, "/internal/heartbeat", api.Handler(deps.handleHeartbeat))

	return router
}

// handleStarted resolves the instance by id and hands it the plugin's real
// audio-process pid, wiring both sinks onto it (spec §4.8 "connected(pid)").
func (d *Deps) handleStarted(w http.ResponseWriter, r *http.Request) error {
	var req startedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.NewValidationError("malformed body", nil)
	}

	inst, ok := d.lookupInstance(req.ID)
	if !ok {
		return api.WriteFailure(w, http.StatusOK, "no such instance")
	}
	if err := inst.Connected(req.PID); err != nil {
		return apperrors.NewInternalError(err.Error())
	}
	return api.WriteSuccess(w, http.StatusOK, "")
}

// handleHeartbeat refreshes the registry's liveness clock for id, keeping
// the reaper from evicting an instance whose plugin is still alive (spec
// §4.9).
func (d *Deps) handleHeartbeat(w http.ResponseWriter, r *http.Request) error {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.NewValidationError("malformed body", nil)
	}

	if _, ok := d.Registry.Get(req.ID); !ok {
		return api.WriteFailure(w, http.StatusOK, "no such instance")
	}
	d.Registry.Heartbeat(req.ID)
	return api.WriteSuccess(w, http.StatusOK, "")
}

// lookupInstance resolves id through the registry and asserts it is the
// concrete *instance.Instance the registry always stores in this process
// (the interface exists for registry/instance to avoid an import cycle,
// not because any other implementation is registered).
func (d *Deps) lookupInstance(id int) (*instance.Instance, bool) {
	regInst, ok := d.Registry.Get(id)
	if !ok {
		return nil, false
	}
	inst, ok := regInst.(*instance.Instance)
	return inst, ok
}
