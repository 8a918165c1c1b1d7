// Package handlers provides HTTP request handlers for the session orchestration API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/corvidlabs/helmsman/internal/assets"
	"github.com/corvidlabs/helmsman/internal/browser"
	"github.com/corvidlabs/helmsman/internal/config"
	"github.com/corvidlabs/helmsman/internal/executor"
	"github.com/corvidlabs/helmsman/internal/metrics"
	"github.com/corvidlabs/helmsman/internal/resourcemon"
	"github.com/corvidlabs/helmsman/internal/session"
	"github.com/corvidlabs/helmsman/internal/types"
	"github.com/corvidlabs/helmsman/pkg/version"
)

// sensitiveParams contains query parameter names that may contain secrets
// and should be redacted in logs.
var sensitiveParams = []string{
	"key", "token", "api_key", "apikey", "password", "secret", "auth",
	"access_token", "refresh_token", "bearer", "credential", "private_key",
}

// sanitizeURLForLogging removes sensitive query parameters from URLs before logging.
func sanitizeURLForLogging(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}

	if parsed.RawQuery == "" {
		return rawURL
	}

	query := parsed.Query()
	redacted := false
	for _, param := range sensitiveParams {
		for key := range query {
			if strings.EqualFold(key, param) {
				query.Set(key, "[REDACTED]")
				redacted = true
			}
		}
	}

	if !redacted {
		return rawURL
	}

	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// closeBody closes an io.ReadCloser and logs any error at debug level.
func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		log.Debug().Err(err).Msg("Error closing request body")
	}
}

// Handler serves the session orchestration HTTP API: session CRUD plus the
// six operation endpoints, wired against the Session Registry, Browser
// Pool, and Operation Executors.
type Handler struct {
	pool        *browser.Pool
	sessions    *session.Manager
	exec        *executor.Executor
	config      *config.Config
	resourceMon *resourcemon.Monitor
	userAgent   string
	startTime   time.Time
	mux         *http.ServeMux
}

// New creates a Handler and builds its routing table.
func New(pool *browser.Pool, sessions *session.Manager, exec *executor.Executor, cfg *config.Config, resourceMon *resourcemon.Monitor) *Handler {
	h := &Handler{
		pool:        pool,
		sessions:    sessions,
		exec:        exec,
		config:      cfg,
		resourceMon: resourceMon,
		userAgent:   getActualUserAgent(pool),
		startTime:   time.Now(),
	}
	h.mux = newRouter(h)
	return h
}

// getActualUserAgent retrieves the real user agent from the browser via CDP,
// so a session's reported User-Agent and Client Hints match the browser's
// true capabilities rather than a hand-picked string.
func getActualUserAgent(pool *browser.Pool) string {
	fallbackUA := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b, err := pool.Acquire(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not acquire browser to get user agent, using fallback")
		return fallbackUA
	}
	defer pool.Release(b)

	result, err := proto.BrowserGetVersion{}.Call(b)
	if err != nil {
		log.Warn().Err(err).Msg("Could not get browser version via CDP, using fallback")
		return fallbackUA
	}

	ua := strings.Replace(result.UserAgent, "HeadlessChrome", "Chrome", 1)
	log.Debug().Str("browser_ua", ua).Msg("Using browser's actual user agent")
	return ua
}

// ServeHTTP implements http.Handler by delegating to the routing table.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// decodeJSON reads and decodes a JSON request body using the shared buffer
// pool, rejecting unknown fields so malformed clients fail fast.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer closeBody(r.Body)

	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := buf.ReadFrom(io.LimitReader(r.Body, 10<<20)); err != nil {
		return err
	}
	if buf.Len() == 0 {
		return nil
	}

	dec := json.NewDecoder(buf)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeJSON encodes v as the response body using the shared response buffer.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	buf := getResponseBuffer()
	defer putResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// apiErrorResponse is the wire format for every operation/session error:
// {error_code, message, details?}.
type apiErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// writeError maps a typed error from internal/types to its HTTP status and
// the stable {error_code, message, details?} body, recording a metric for
// every failure kind.
func writeError(w http.ResponseWriter, err error) {
	status, code, details := classifyError(err)
	metrics.RecordOperationFailed(code)

	writeJSON(w, status, apiErrorResponse{
		ErrorCode: code,
		Message:   err.Error(),
		Details:   details,
	})
}

func classifyError(err error) (status int, code string, details interface{}) {
	var notFound *types.SessionNotFoundError
	var invalid *types.InvalidSessionError
	var browserErr *types.BrowserOperationError
	var validation *types.ValidationError
	var limit *types.ResourceLimitError
	var cfgErr *types.ConfigurationError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, "session_not_found", nil
	case errors.As(err, &invalid):
		return http.StatusConflict, "invalid_session", nil
	case errors.As(err, &browserErr):
		return http.StatusBadGateway, "browser_operation_error", browserErr.Details
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation_error", map[string]string{"field": validation.Field}
	case errors.As(err, &limit):
		return http.StatusTooManyRequests, "resource_limit", map[string]int64{"limit": limit.Limit, "current": limit.Current}
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError, "configuration_error", nil
	default:
		return http.StatusInternalServerError, "internal_error", nil
	}
}

// HandleCreateSession handles POST /v1/sessions.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var cfg types.SessionConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, types.NewValidationError("body", err.Error()))
		return
	}

	if cfg.BrowserKind != "" && cfg.BrowserKind != types.BrowserChromium {
		writeError(w, types.NewValidationError("browser_kind", "only chromium is supported by this browser pool"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.BrowserPoolTimeout)
	defer cancel()

	ownerID := r.Header.Get("X-API-Key")

	var sess *session.Session
	if cfg.Proxy != "" {
		brow, err := h.pool.SpawnWithProxy(ctx, cfg.Proxy)
		if err != nil {
			writeError(w, types.NewBrowserOperationError("acquire_browser", err))
			return
		}
		sess, err = h.sessions.CreateDedicated(cfg, ownerID, brow)
		if err != nil {
			writeError(w, err)
			return
		}
	} else {
		brow, err := h.pool.Acquire(ctx)
		if err != nil {
			writeError(w, types.NewBrowserOperationError("acquire_browser", err))
			return
		}
		sess, err = h.sessions.Create(cfg, ownerID, brow)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	metrics.UpdateSessionMetrics(h.sessions.Count())
	writeJSON(w, http.StatusCreated, sess.Info())
}

// HandleListSessions handles GET /v1/sessions.
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := h.sessions.List()
	infos := make([]types.SessionInfo, 0, len(ids))
	for _, id := range ids {
		sess, err := h.sessions.Get(id)
		if err != nil {
			continue
		}
		infos = append(infos, sess.Info())
	}
	writeJSON(w, http.StatusOK, infos)
}

// HandleGetSession handles GET /v1/sessions/{id}.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// HandleSessionStats handles GET /v1/sessions/{id}/stats.
func (h *Handler) HandleSessionStats(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Stats())
}

// HandleDeleteSession handles DELETE /v1/sessions/{id}.
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.sessions.Destroy(id); err != nil {
		writeError(w, err)
		return
	}
	metrics.UpdateSessionMetrics(h.sessions.Count())
	w.WriteHeader(http.StatusNoContent)
}

// withSession resolves the path session id and reports SessionNotFound
// through the standard error body on failure.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return sess, true
}

// runOp records the operation's outcome metric and writes either the
// result or the mapped error body.
func runOp(w http.ResponseWriter, operation string, start time.Time, result interface{}, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordRequest(operation, status, time.Since(start))

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleNavigate handles POST /v1/sessions/{id}/navigate.
func (h *Handler) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var req types.NavigateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, types.NewValidationError("body", err.Error()))
		return
	}

	start := time.Now()
	result, err := h.exec.Navigate(r.Context(), sess, req)
	if err != nil {
		log.Debug().Err(err).Str("url", sanitizeURLForLogging(req.URL)).Msg("navigate failed")
	}
	runOp(w, "navigate", start, result, err)
}

// HandleExtract handles POST /v1/sessions/{id}/extract.
func (h *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var req types.ExtractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, types.NewValidationError("body", err.Error()))
		return
	}

	start := time.Now()
	result, err := h.exec.Extract(r.Context(), sess, req)
	if err == nil && result != nil && result.Captcha != nil && result.Captcha.IsCaptcha {
		metrics.RecordCaptchaDetection(result.Captcha.Reason)
	}
	runOp(w, "extract", start, result, err)
}

// HandleDetectCaptcha handles POST /v1/sessions/{id}/detect-captcha.
func (h *Handler) HandleDetectCaptcha(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var req types.DetectCaptchaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, types.NewValidationError("body", err.Error()))
		return
	}

	start := time.Now()
	result, err := h.exec.DetectCaptcha(r.Context(), sess, req)
	if err == nil && result != nil && result.IsCaptcha {
		metrics.RecordCaptchaDetection(result.Reason)
	}
	runOp(w, "detect_captcha", start, result, err)
}

// HandleInteract handles POST /v1/sessions/{id}/interact.
func (h *Handler) HandleInteract(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var req types.InteractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, types.NewValidationError("body", err.Error()))
		return
	}

	start := time.Now()
	result, err := h.exec.Interact(r.Context(), sess, req)
	runOp(w, "interact", start, result, err)
}

// HandleScreenshot handles POST /v1/sessions/{id}/screenshot.
func (h *Handler) HandleScreenshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var req types.ScreenshotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, types.NewValidationError("body", err.Error()))
		return
	}

	start := time.Now()
	result, err := h.exec.Screenshot(r.Context(), sess, req)
	runOp(w, "screenshot", start, result, err)
}

// HandleBatch handles POST /v1/sessions/{id}/batch.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var req types.BatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, types.NewValidationError("body", err.Error()))
		return
	}

	start := time.Now()
	result, err := h.exec.Batch(r.Context(), sess, req)
	runOp(w, "batch", start, result, err)
}

// healthResponse is the body returned by GET /healthz.
type healthResponse struct {
	Status       string                    `json:"status"`
	Sessions     int                       `json:"sessions"`
	MaxSessions  int                       `json:"max_sessions"`
	Pool         browser.PoolStatsSnapshot `json:"pool"`
	PoolSize     int                       `json:"pool_size"`
	PoolAvail    int                       `json:"pool_available"`
	ResourceInfo *resourcemon.Summary      `json:"resource_summary,omitempty"`
}

// HandleHealth handles GET /healthz. It serves JSON by default, or the
// operator-facing HTML health page when the client asks for text/html.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Sessions:    h.sessions.Count(),
		MaxSessions: h.config.MaxSessions,
	}
	if h.pool != nil {
		resp.Pool = h.pool.Stats()
		resp.PoolSize = h.pool.Size()
		resp.PoolAvail = h.pool.Available()
	}

	if h.resourceMon != nil {
		summary := h.resourceMon.Summary()
		resp.ResourceInfo = &summary
	}

	metrics.UpdatePoolMetrics(resp.PoolSize, resp.PoolAvail, resp.Pool.Acquired, resp.Pool.Recycled)
	metrics.UpdateSessionMetrics(resp.Sessions)

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		page, err := assets.RenderHealthPage(assets.HealthPageData{
			Version:   version.Full(),
			GoVersion: version.GoVersion(),
			Uptime:    time.Since(h.startTime).Round(time.Second).String(),
			PoolSize:  resp.PoolSize,
			Sessions:  resp.Sessions,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to render health page")
			writeJSON(w, http.StatusOK, resp)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(page))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleDocs handles GET /v1/docs, serving the plaintext API reference.
func (h *Handler) HandleDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(assets.APIDocumentation))
}

// HandleNotFound writes a standard 404 error body for unmatched routes.
func (h *Handler) HandleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, apiErrorResponse{ErrorCode: "not_found", Message: "no such route"})
}
