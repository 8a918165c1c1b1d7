package session

import (
	"errors"
	"testing"
	"time"

	"github.com/corvidlabs/helmsman/internal/config"
	"github.com/corvidlabs/helmsman/internal/types"
)

// testConfig returns a configuration suitable for testing.
func testConfig() *config.Config {
	return &config.Config{
		SessionTTL:             1 * time.Second,
		SessionCleanupInterval: 500 * time.Millisecond,
		MaxSessions:            5,
	}
}

// newTestSession builds a bare Session for unit tests that exercise the
// quota/state-machine helpers without a live browser/page.
func newTestSession() *Session {
	s := &Session{
		ID:        "sess_deadbeef",
		CreatedAt: time.Now(),
		Quota:     types.DefaultQuotaLimits(),
	}
	s.lastUsed.Store(time.Now().UnixNano())
	s.status.Store(int32(statusActive))
	s.lastError.Store("")
	return s
}

func TestNewManager(t *testing.T) {
	cfg := testConfig()
	m := NewManager(cfg, nil)
	defer m.Close()

	if m == nil {
		t.Fatal("Expected non-nil manager")
	}

	if m.Count() != 0 {
		t.Errorf("Expected 0 sessions, got %d", m.Count())
	}
}

func TestManagerList(t *testing.T) {
	cfg := testConfig()
	m := NewManager(cfg, nil)
	defer m.Close()

	ids := m.List()
	if len(ids) != 0 {
		t.Errorf("Expected empty list, got %d items", len(ids))
	}
}

func TestManagerClose(t *testing.T) {
	cfg := testConfig()
	m := NewManager(cfg, nil)

	if err := m.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}

func TestManagerGetUnknownSession(t *testing.T) {
	cfg := testConfig()
	m := NewManager(cfg, nil)
	defer m.Close()

	if _, err := m.Get("sess_deadbeef"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManagerDestroyUnknownSession(t *testing.T) {
	cfg := testConfig()
	m := NewManager(cfg, nil)
	defer m.Close()

	if err := m.Destroy("sess_deadbeef"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStatusDefaultsActive(t *testing.T) {
	s := newTestSession()
	if s.Status() != types.StatusActive {
		t.Errorf("expected new session to be Active, got %v", s.Status())
	}
}

func TestSessionMarkIdleAndTouchReactivates(t *testing.T) {
	s := newTestSession()
	s.MarkIdle()
	if s.Status() != types.StatusIdle {
		t.Errorf("expected Idle after MarkIdle, got %v", s.Status())
	}

	s.Touch()
	if s.Status() != types.StatusActive {
		t.Errorf("expected Active after Touch following Idle, got %v", s.Status())
	}
}

func TestSessionMarkErrorIsTerminal(t *testing.T) {
	s := newTestSession()
	s.MarkError(errors.New("browser crashed"))

	if s.Status() != types.StatusError {
		t.Errorf("expected Error status, got %v", s.Status())
	}

	// MarkIdle must not override the terminal Error state.
	s.MarkIdle()
	if s.Status() != types.StatusError {
		t.Errorf("expected Error status to remain terminal, got %v", s.Status())
	}

	if s.Stats().LastError == "" {
		t.Error("expected LastError to be recorded")
	}
}

func TestSessionCheckQuotaRejectsAtLimit(t *testing.T) {
	s := newTestSession()
	s.Quota.MaxScreenshots = 2

	if err := s.CheckQuota("screenshots"); err != nil {
		t.Errorf("expected no error below limit, got %v", err)
	}
	s.RecordScreenshot()
	s.RecordScreenshot()

	if err := s.CheckQuota("screenshots"); err == nil {
		t.Error("expected ResourceLimitError at quota limit")
	}
}

func TestSessionRecordRequestAccumulatesStats(t *testing.T) {
	s := newTestSession()
	s.RecordRequest()
	s.RecordRequest()
	s.RecordPageLoad()
	s.RecordInteraction()

	stats := s.Stats()
	if stats.Requests != 2 {
		t.Errorf("expected 2 requests, got %d", stats.Requests)
	}
	if stats.PagesLoaded != 1 {
		t.Errorf("expected 1 page load, got %d", stats.PagesLoaded)
	}
	if stats.Interactions != 1 {
		t.Errorf("expected 1 interaction, got %d", stats.Interactions)
	}
}

func TestSessionSetURLAndInfo(t *testing.T) {
	s := newTestSession()
	s.SetURL("https://example.com", "Example")

	info := s.Info()
	if info.URL != "https://example.com" {
		t.Errorf("expected URL to round-trip, got %q", info.URL)
	}
	if info.Title != "Example" {
		t.Errorf("expected title to round-trip, got %q", info.Title)
	}
	if info.ID != s.ID {
		t.Errorf("expected Info().ID to match session ID")
	}
}

func TestAcquirePageNilWhenClosing(t *testing.T) {
	s := newTestSession()
	s.closing.Store(true)

	if page := s.AcquirePage(); page != nil {
		t.Error("expected AcquirePage to return nil while closing")
	}
}
