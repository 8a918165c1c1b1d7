package handlers

import (
	"net/http"

	"github.com/corvidlabs/helmsman/internal/metrics"
)

// newRouter builds the REST routing table: session CRUD, the six operation
// endpoints, and the health/metrics surface. Uses the standard library's
// method-aware pattern matching (net/http.ServeMux, Go 1.22+).
func newRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /v1/sessions", h.HandleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", h.HandleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.HandleDeleteSession)
	mux.HandleFunc("GET /v1/sessions/{id}/stats", h.HandleSessionStats)

	mux.HandleFunc("POST /v1/sessions/{id}/navigate", h.HandleNavigate)
	mux.HandleFunc("POST /v1/sessions/{id}/extract", h.HandleExtract)
	mux.HandleFunc("POST /v1/sessions/{id}/detect-captcha", h.HandleDetectCaptcha)
	mux.HandleFunc("POST /v1/sessions/{id}/interact", h.HandleInteract)
	mux.HandleFunc("POST /v1/sessions/{id}/screenshot", h.HandleScreenshot)
	mux.HandleFunc("POST /v1/sessions/{id}/batch", h.HandleBatch)

	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.HandleFunc("GET /v1/docs", h.HandleDocs)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("/", h.HandleNotFound)

	return mux
}
