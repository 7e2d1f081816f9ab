package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/webviewflow/internal/runtime/jsoncodec"
)

type statusResponse struct {
	Transports []TransportStatus `json:"transports"`
}

// StatusHandler serves a JSON snapshot of the registered transports and the
// instances each of them manages.
type StatusHandler struct {
	service     *TransportService
	corsOrigins []string
}

// NewStatusHandler returns a handler for svc. corsOrigins lists the origins
// allowed to read the status from a browser; "*" allows any.
func NewStatusHandler(svc *TransportService, corsOrigins []string) *StatusHandler {
	return &StatusHandler{service: svc, corsOrigins: corsOrigins}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if len(h.corsOrigins) > 0 {
		origin := r.Header.Get("Origin")
		allowedOrigin := h.getAllowedCORSOrigin(origin)
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{Transports: h.service.Status()}
	if err := jsoncodec.Encode(w, resp); err != nil {
		h.service.Logger.Error("Failed to encode status", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the
// matching Access-Control-Allow-Origin value.
func (h *StatusHandler) getAllowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range h.corsOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
