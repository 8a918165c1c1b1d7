package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSessionConfigJSONFieldNames(t *testing.T) {
	cfg := SessionConfig{
		Viewport:    Viewport{Width: 1280, Height: 720},
		UserAgent:   "Mozilla/5.0",
		Stealth:     true,
		Timeout:     30 * time.Second,
		BrowserKind: BrowserChromium,
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}

	jsonStr := string(data)
	for _, field := range []string{`"viewport"`, `"user_agent"`, `"stealth"`, `"browser_kind"`} {
		if !strings.Contains(jsonStr, field) {
			t.Errorf("expected field %s not found in JSON: %s", field, jsonStr)
		}
	}
}

func TestNavigateRequestDeserialization(t *testing.T) {
	tests := []struct {
		name          string
		json          string
		wantSessionID string
		wantURL       string
		wantWaitUntil WaitCondition
	}{
		{
			name:          "basic navigate",
			json:          `{"session_id":"sess_deadbeef","url":"https://example.com"}`,
			wantSessionID: "sess_deadbeef",
			wantURL:       "https://example.com",
		},
		{
			name:          "navigate with wait condition",
			json:          `{"session_id":"sess_deadbeef","url":"https://example.com","wait_until":"network-idle"}`,
			wantSessionID: "sess_deadbeef",
			wantURL:       "https://example.com",
			wantWaitUntil: WaitNetworkIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req NavigateRequest
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("failed to unmarshal: %v", err)
			}
			if req.SessionID != tt.wantSessionID {
				t.Errorf("SessionID = %q, want %q", req.SessionID, tt.wantSessionID)
			}
			if req.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", req.URL, tt.wantURL)
			}
			if req.WaitUntil != tt.wantWaitUntil {
				t.Errorf("WaitUntil = %q, want %q", req.WaitUntil, tt.wantWaitUntil)
			}
		})
	}
}

func TestBatchResultAggregateFields(t *testing.T) {
	result := BatchResult{
		Results: []BatchOpResult{
			{Operation: "navigate", Success: true},
			{Operation: "extract", Success: false, Error: "timeout"},
		},
		SuccessCount: 1,
		FailureCount: 1,
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal batch result: %v", err)
	}

	jsonStr := string(data)
	for _, field := range []string{`"success_count"`, `"failure_count"`, `"results"`} {
		if !strings.Contains(jsonStr, field) {
			t.Errorf("expected field %s not found in JSON: %s", field, jsonStr)
		}
	}
}

func TestDefaultQuotaLimits(t *testing.T) {
	q := DefaultQuotaLimits()
	if q.MaxDuration != 300*time.Second {
		t.Errorf("MaxDuration = %v, want 300s", q.MaxDuration)
	}
	if q.MaxRequests != 1000 {
		t.Errorf("MaxRequests = %d, want 1000", q.MaxRequests)
	}
	if q.MaxPages != 100 {
		t.Errorf("MaxPages = %d, want 100", q.MaxPages)
	}
	if q.MaxScreenshots != 50 {
		t.Errorf("MaxScreenshots = %d, want 50", q.MaxScreenshots)
	}
	if q.MaxInteractions != 500 {
		t.Errorf("MaxInteractions = %d, want 500", q.MaxInteractions)
	}
}
