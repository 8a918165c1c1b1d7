package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/corvidlabs/helmsman/internal/config"
	"github.com/corvidlabs/helmsman/internal/executor"
	"github.com/corvidlabs/helmsman/internal/session"
	"github.com/corvidlabs/helmsman/internal/types"
)

// mockHandler creates a handler without a real browser pool, for testing
// the routing/validation/error-mapping paths that don't need a live browser.
func mockHandler() *Handler {
	cfg := &config.Config{
		DefaultTimeout:         60 * time.Second,
		MaxTimeout:             300 * time.Second,
		SessionTTL:             30 * time.Minute,
		SessionCleanupInterval: 1 * time.Minute,
		MaxSessions:            100,
		BrowserPoolTimeout:     5 * time.Second,
	}

	h := &Handler{
		pool:      nil,
		sessions:  session.NewManager(cfg, nil),
		exec:      executor.New(nil, nil, nil, nil, 0),
		config:    cfg,
		userAgent: "TestAgent/1.0",
	}
	h.mux = newRouter(h)
	return h
}

func TestHealthEndpoint(t *testing.T) {
	h := mockHandler()
	defer h.sessions.Close()

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("Expected status 'ok', got %q", resp.Status)
	}

	if resp.MaxSessions != 100 {
		t.Errorf("Expected max_sessions 100, got %d", resp.MaxSessions)
	}
}

func TestListSessionsEmpty(t *testing.T) {
	h := mockHandler()
	defer h.sessions.Close()

	req := httptest.NewRequest("GET", "/v1/sessions", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var infos []types.SessionInfo
	if err := json.Unmarshal(w.Body.Bytes(), &infos); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected empty sessions list, got %d", len(infos))
	}
}

func TestGetSessionNotFound(t *testing.T) {
	h := mockHandler()
	defer h.sessions.Close()

	req := httptest.NewRequest("GET", "/v1/sessions/sess_deadbeef", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.ErrorCode != "session_not_found" {
		t.Errorf("Expected error_code 'session_not_found', got %q", resp.ErrorCode)
	}
}

func TestDeleteSessionNotFound(t *testing.T) {
	h := mockHandler()
	defer h.sessions.Close()

	req := httptest.NewRequest("DELETE", "/v1/sessions/sess_deadbeef", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestNavigateSessionNotFound(t *testing.T) {
	h := mockHandler()
	defer h.sessions.Close()

	body, _ := json.Marshal(types.NavigateRequest{URL: "https://example.com"})
	req := httptest.NewRequest("POST", "/v1/sessions/sess_deadbeef/navigate", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestCreateSessionInvalidBrowserKind(t *testing.T) {
	h := mockHandler()
	defer h.sessions.Close()

	body, _ := json.Marshal(types.SessionConfig{BrowserKind: types.BrowserFirefox})
	req := httptest.NewRequest("POST", "/v1/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.ErrorCode != "validation_error" {
		t.Errorf("Expected error_code 'validation_error', got %q", resp.ErrorCode)
	}
}

func TestCreateSessionMalformedBody(t *testing.T) {
	h := mockHandler()
	defer h.sessions.Close()

	req := httptest.NewRequest("POST", "/v1/sessions", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestNotFoundRoute(t *testing.T) {
	h := mockHandler()
	defer h.sessions.Close()

	req := httptest.NewRequest("GET", "/nope", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestContentTypeHeader(t *testing.T) {
	h := mockHandler()
	defer h.sessions.Close()

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got %q", contentType)
	}
}

func TestSanitizeURLForLogging(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"no query", "https://example.com/page", "https://example.com/page"},
		{"redacts api_key", "https://example.com?api_key=secret123", "https://example.com?api_key=%5BREDACTED%5D"},
		{"invalid url", "://bad", "[invalid-url]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeURLForLogging(tt.in)
			if got != tt.want {
				t.Errorf("sanitizeURLForLogging(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"session not found", types.NewSessionNotFoundError("sess_deadbeef"), http.StatusNotFound, "session_not_found"},
		{"invalid session", types.NewInvalidSessionError("sess_deadbeef", "expired"), http.StatusConflict, "invalid_session"},
		{"browser operation", types.NewBrowserOperationError("navigate", nil), http.StatusBadGateway, "browser_operation_error"},
		{"validation", types.NewValidationError("url", "required"), http.StatusBadRequest, "validation_error"},
		{"resource limit", types.NewResourceLimitError("sessions", 1, 1), http.StatusTooManyRequests, "resource_limit"},
		{"configuration", types.NewConfigurationError("port", "out of range"), http.StatusInternalServerError, "configuration_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := classifyError(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}
