package daemonapi

import (
	"net/http"
	"strings"

	"github.com/yamba-project/yamba-daemon-go/internal/api"
	"github.com/yamba-project/yamba-daemon-go/internal/apperrors"
)

// peerIPMiddleware rejects any request whose source address is not
// peerIP, the manager's configured address (spec §4.11 "Authorization of
// inbound traffic is IP-based"). X-Forwarded-For is honored first so the
// check still works behind a local reverse proxy, falling back to
// RemoteAddr otherwise.
func peerIPMiddleware(peerIP string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sourceIP(r) != peerIP {
				api.WriteError(w, r, apperrors.NewForbiddenError("source address not permitted"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sourceIP extracts the request's originating address, preferring
// X-Forwarded-For's first hop over RemoteAddr.
func sourceIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	addr := r.RemoteAddr
	if colonIdx := strings.LastIndex(addr, ":"); colonIdx != -1 {
		return addr[:colonIdx]
	}
	return addr
}
