package api

import (
	"encoding/json"
	"net/http"

	"github.com/yamba-project/yamba-daemon-go/internal/apperrors"
)

// Result is the wire envelope used by every public/internal daemon endpoint.
// {"success": true} or {"success": false, "msg": "..."}
type Result struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg,omitempty"`
}

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteSuccess writes {"success": true}, plus "msg" when msg is non-empty;
// most endpoints pass "" and get the bare envelope.
func WriteSuccess(w http.ResponseWriter, status int, msg string) error {
	return WriteJSON(w, status, Result{Success: true, Msg: msg})
}

// WriteFailure writes {"success": false, "msg": "..."} for a validation or
// application-level failure that still deserves a 2xx/4xx body rather than
// the generic error envelope (spec: "/playback/url?id=11 returns
// {success:false}" for a missing instance, not a transport-level error).
func WriteFailure(w http.ResponseWriter, status int, msg string) error {
	return WriteJSON(w, status, Result{Success: false, Msg: msg})
}

// WriteError serializes an AppError as a failure-shaped body, keeping the
// daemon's single wire envelope even for error paths routed through
// RecovererMiddleware or apperrors.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.EnsureAppError(err)
	_ = WriteJSON(w, appErr.StatusCode, Result{Success: false, Msg: appErr.Message})
}
