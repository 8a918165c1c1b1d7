package selectors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewManager_EmbeddedOnly(t *testing.T) {
	m, err := NewManager("", false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	sel := m.Get()
	if sel == nil {
		t.Fatal("Get() returned nil")
	}

	if len(sel.BlockedPageText) == 0 {
		t.Error("Expected blocked page patterns from embedded selectors")
	}
	if len(sel.CaptchaKeywords) == 0 {
		t.Error("Expected captcha keyword patterns from embedded selectors")
	}
	if len(sel.ChallengeScriptText) == 0 {
		t.Error("Expected challenge script patterns from embedded selectors")
	}
}

func TestNewManager_ExternalFile(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "selectors.yaml")

	content := `
blocked_page_text:
  - "custom denied"
  - "test blocked"
captcha_keywords:
  - "custom-captcha"
challenge_script_text:
  - "custom challenge"
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	m, err := NewManager(tmpFile, false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	sel := m.Get()
	if sel == nil {
		t.Fatal("Get() returned nil")
	}

	if len(sel.BlockedPageText) != 2 {
		t.Errorf("Expected 2 blocked page patterns, got %d", len(sel.BlockedPageText))
	}
	if sel.BlockedPageText[0] != "custom denied" {
		t.Errorf("Expected 'custom denied', got %s", sel.BlockedPageText[0])
	}

	// Embedded fields should fill in missing ones
	if len(sel.CaptchaDOMSelectors) == 0 {
		t.Error("Expected embedded CaptchaDOMSelectors to be used")
	}
}

func TestManager_Get_LockFree(t *testing.T) {
	m, err := NewManager("", false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	const goroutines = 100
	const iterations = 1000

	done := make(chan bool)
	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < iterations; j++ {
				sel := m.Get()
				if sel == nil {
					t.Error("Get() returned nil")
					return
				}
				if len(sel.BlockedPageText) == 0 {
					t.Error("Expected patterns")
					return
				}
			}
			done <- true
		}()
	}

	for i := 0; i < goroutines; i++ {
		<-done
	}
}

func TestManager_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "selectors.yaml")

	content := `
blocked_page_text:
  - "initial pattern"
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	m, err := NewManager(tmpFile, false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	sel := m.Get()
	if sel.BlockedPageText[0] != "initial pattern" {
		t.Errorf("Expected 'initial pattern', got %s", sel.BlockedPageText[0])
	}

	newContent := `
blocked_page_text:
  - "updated pattern"
  - "another pattern"
`
	if err := os.WriteFile(tmpFile, []byte(newContent), 0644); err != nil {
		t.Fatalf("Failed to update temp file: %v", err)
	}

	if err := m.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	sel = m.Get()
	if len(sel.BlockedPageText) != 2 {
		t.Errorf("Expected 2 blocked page patterns, got %d", len(sel.BlockedPageText))
	}
	if sel.BlockedPageText[0] != "updated pattern" {
		t.Errorf("Expected 'updated pattern', got %s", sel.BlockedPageText[0])
	}

	stats := m.Stats()
	if stats.ReloadCount != 2 {
		t.Errorf("Expected ReloadCount = 2, got %d", stats.ReloadCount)
	}
	if stats.LastError != nil {
		t.Errorf("Expected no error, got %v", stats.LastError)
	}
}

func TestManager_Reload_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "selectors.yaml")

	validContent := `
blocked_page_text:
  - "valid pattern"
`
	if err := os.WriteFile(tmpFile, []byte(validContent), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	m, err := NewManager(tmpFile, false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	invalidContent := `
blocked_page_text:
  - not valid yaml {{{
    incomplete:
`
	if err := os.WriteFile(tmpFile, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to update temp file: %v", err)
	}

	if err := m.Reload(); err == nil {
		t.Error("Expected Reload() to fail with invalid YAML")
	}

	sel := m.Get()
	if sel.BlockedPageText[0] != "valid pattern" {
		t.Errorf("Expected original pattern to be preserved, got %s", sel.BlockedPageText[0])
	}

	stats := m.Stats()
	if stats.LastError == nil {
		t.Error("Expected LastError to be set")
	}
}

func TestManager_Reload_NoExternalPath(t *testing.T) {
	m, err := NewManager("", false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	err = m.Reload()
	if err == nil {
		t.Error("Expected Reload() to fail when no external path is configured")
	}
}

func TestManager_HotReload(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping hot-reload test in short mode")
	}

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "selectors.yaml")

	content := `
blocked_page_text:
  - "hot reload test"
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	m, err := NewManager(tmpFile, true)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	sel := m.Get()
	if sel.BlockedPageText[0] != "hot reload test" {
		t.Errorf("Expected 'hot reload test', got %s", sel.BlockedPageText[0])
	}

	newContent := `
blocked_page_text:
  - "auto reloaded"
`
	if err := os.WriteFile(tmpFile, []byte(newContent), 0644); err != nil {
		t.Fatalf("Failed to update temp file: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	sel = m.Get()
	if sel.BlockedPageText[0] != "auto reloaded" {
		t.Errorf("Expected 'auto reloaded' after hot-reload, got %s", sel.BlockedPageText[0])
	}
}

func TestSelectors_Validate(t *testing.T) {
	tests := []struct {
		name    string
		sel     *Selectors
		wantErr bool
	}{
		{
			name: "valid with all patterns",
			sel: &Selectors{
				BlockedPageText:     []string{"denied"},
				CaptchaKeywords:     []string{"captcha"},
				ChallengeScriptText: []string{"challenge"},
			},
			wantErr: false,
		},
		{
			name: "valid with only blocked page text",
			sel: &Selectors{
				BlockedPageText: []string{"denied"},
			},
			wantErr: false,
		},
		{
			name: "valid with only captcha keywords",
			sel: &Selectors{
				CaptchaKeywords: []string{"captcha"},
			},
			wantErr: false,
		},
		{
			name: "valid with only challenge script text",
			sel: &Selectors{
				ChallengeScriptText: []string{"challenge"},
			},
			wantErr: false,
		},
		{
			name:    "invalid - empty",
			sel:     &Selectors{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sel.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetManager(t *testing.T) {
	m := GetManager()
	if m == nil {
		t.Fatal("GetManager() returned nil")
	}
	defer m.Close()

	sel := m.Get()
	if sel == nil {
		t.Fatal("Get() returned nil")
	}

	if len(sel.BlockedPageText) == 0 {
		t.Error("Expected blocked page patterns")
	}
}

func TestManager_MergeWithEmbedded(t *testing.T) {
	m, err := NewManager("", false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	external := &Selectors{
		BlockedPageText: []string{"custom denied"},
		// Other fields empty - should use embedded
	}

	merged := m.mergeWithEmbedded(external)

	if len(merged.BlockedPageText) != 1 || merged.BlockedPageText[0] != "custom denied" {
		t.Errorf("Expected custom blocked_page_text pattern, got %v", merged.BlockedPageText)
	}

	if len(merged.CaptchaKeywords) == 0 {
		t.Error("Expected embedded captcha_keywords to be used")
	}
	if len(merged.ChallengeScriptText) == 0 {
		t.Error("Expected embedded challenge_script_text to be used")
	}
	if len(merged.CaptchaDOMSelectors) == 0 {
		t.Error("Expected embedded captcha_dom_selectors to be used")
	}
	if merged.CaptchaFramePattern == "" {
		t.Error("Expected embedded captcha_frame_pattern to be used")
	}
}

func TestManager_Close(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "selectors.yaml")

	content := `blocked_page_text: ["test"]`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	m, err := NewManager(tmpFile, true) // With hot-reload
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if err := m.Close(); err != nil {
		t.Logf("Double Close() returned: %v (expected)", err)
	}
}

// ============================================================
// Remote selector fetch tests
// ============================================================

func TestManager_LoadRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(`
blocked_page_text:
  - "remote denied"
captcha_keywords:
  - "remote captcha"
challenge_script_text:
  - "remote challenge"
`))
	}))
	defer server.Close()

	m, err := NewManagerWithRemote("", false, server.URL, 1*time.Hour)
	if err != nil {
		t.Fatalf("NewManagerWithRemote() error = %v", err)
	}
	defer m.Close()

	sel := m.Get()
	if sel == nil {
		t.Fatal("Get() returned nil")
	}

	if len(sel.BlockedPageText) != 1 || sel.BlockedPageText[0] != "remote denied" {
		t.Errorf("Expected 'remote denied', got %v", sel.BlockedPageText)
	}
	if len(sel.CaptchaKeywords) != 1 || sel.CaptchaKeywords[0] != "remote captcha" {
		t.Errorf("Expected 'remote captcha', got %v", sel.CaptchaKeywords)
	}

	stats := m.Stats()
	if stats.RemoteSuccesses < 1 {
		t.Errorf("Expected at least 1 remote success, got %d", stats.RemoteSuccesses)
	}
}

func TestManager_RemoteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := &Manager{
		embedded:        Get(),
		stopCh:          make(chan struct{}),
		remoteURL:       server.URL,
		refreshInterval: 1 * time.Hour,
		httpClient: &http.Client{
			Timeout: 100 * time.Millisecond,
		},
	}
	m.current.Store(m.embedded)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := m.loadRemote(ctx)
	if err == nil {
		t.Error("Expected timeout error, got nil")
	}
}

func TestManager_RemoteMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(`
this is not valid yaml {{{
  - incomplete:
`))
	}))
	defer server.Close()

	m, err := NewManagerWithRemote("", false, server.URL, 1*time.Hour)
	if err != nil {
		t.Fatalf("NewManagerWithRemote() error = %v", err)
	}
	defer m.Close()

	sel := m.Get()
	if sel == nil {
		t.Fatal("Get() returned nil")
	}

	if len(sel.BlockedPageText) == 0 {
		t.Error("Expected embedded blocked page patterns")
	}
}

func TestManager_RemoteRefresh(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping refresh test in short mode")
	}

	callCount := 0
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		callCount++
		currentCount := callCount
		mu.Unlock()

		w.Header().Set("Content-Type", "application/yaml")
		_, _ = fmt.Fprintf(w, `
blocked_page_text:
  - "refresh %d"
`, currentCount)
	}))
	defer server.Close()

	m, err := NewManagerWithRemote("", false, server.URL, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewManagerWithRemote() error = %v", err)
	}
	defer m.Close()

	time.Sleep(350 * time.Millisecond)

	mu.Lock()
	finalCount := callCount
	mu.Unlock()

	if finalCount < 2 {
		t.Errorf("Expected at least 2 calls, got %d", finalCount)
	}

	stats := m.Stats()
	if stats.RemoteSuccesses < 2 {
		t.Errorf("Expected at least 2 remote successes, got %d", stats.RemoteSuccesses)
	}
}

func TestManager_RemoteFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	m, err := NewManagerWithRemote("", false, server.URL, 1*time.Hour)
	if err != nil {
		t.Fatalf("NewManagerWithRemote() error = %v", err)
	}
	defer m.Close()

	sel := m.Get()
	if sel == nil {
		t.Fatal("Get() returned nil")
	}

	if len(sel.BlockedPageText) == 0 {
		t.Error("Expected embedded blocked page patterns from graceful degradation")
	}
}

func TestManager_RemoteWithFileOverride(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "selectors.yaml")

	content := `
blocked_page_text:
  - "file pattern"
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(`
blocked_page_text:
  - "remote pattern"
`))
	}))
	defer server.Close()

	m, err := NewManagerWithRemote(tmpFile, false, server.URL, 1*time.Hour)
	if err != nil {
		t.Fatalf("NewManagerWithRemote() error = %v", err)
	}
	defer m.Close()

	sel := m.Get()

	if len(sel.BlockedPageText) != 1 || sel.BlockedPageText[0] != "file pattern" {
		t.Errorf("Expected 'file pattern' (file takes priority), got %v", sel.BlockedPageText)
	}
}

func TestManager_RemoteNoURL(t *testing.T) {
	m := &Manager{
		embedded:   Get(),
		stopCh:     make(chan struct{}),
		remoteURL:  "",
		httpClient: nil,
	}
	m.current.Store(m.embedded)

	ctx := context.Background()
	_, err := m.loadRemote(ctx)
	if err == nil {
		t.Error("Expected error when no remote URL configured")
	}
}

func TestManager_RemoteStats(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write([]byte(`blocked_page_text: ["test"]`))
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	m, err := NewManagerWithRemote("", false, server.URL, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewManagerWithRemote() error = %v", err)
	}
	defer m.Close()

	time.Sleep(150 * time.Millisecond)

	stats := m.Stats()

	if stats.RemoteSuccesses < 1 {
		t.Errorf("Expected at least 1 remote success, got %d", stats.RemoteSuccesses)
	}

	if stats.RemoteFailures < 1 {
		t.Errorf("Expected at least 1 remote failure, got %d", stats.RemoteFailures)
	}

	if stats.LastRemoteFetch.IsZero() {
		t.Error("Expected LastRemoteFetch to be set")
	}
}
