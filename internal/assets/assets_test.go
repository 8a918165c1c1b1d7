package assets

import (
	"strings"
	"testing"
)

func TestSanitizeVersion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "1.2.3", "1.2.3"},
		{"empty", "", "unknown"},
		{"strips script tag", "<script>alert(1)</script>", "unknown"},
		{"strips quotes", `1.0.0"onmouseover="x`, "1.0.0onmouseoverx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeVersion(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeVersion(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeVersionTruncatesLongInput(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := SanitizeVersion(long)
	if len(got) > 100 {
		t.Errorf("expected sanitized version capped at 100 chars, got %d", len(got))
	}
}

func TestRenderHealthPage(t *testing.T) {
	page, err := RenderHealthPage(HealthPageData{
		Version:   "1.0.0",
		GoVersion: "go1.22",
		Uptime:    "5m0s",
		PoolSize:  4,
		Sessions:  2,
	})
	if err != nil {
		t.Fatalf("RenderHealthPage returned error: %v", err)
	}
	if !strings.Contains(page, "1.0.0") {
		t.Errorf("expected rendered page to contain version, got %q", page)
	}
	if !strings.Contains(page, "Helmsman") {
		t.Errorf("expected rendered page to contain product name")
	}
}

func TestRenderHealthPageEscapesVersion(t *testing.T) {
	page, err := RenderHealthPage(HealthPageData{Version: "<script>alert(1)</script>"})
	if err != nil {
		t.Fatalf("RenderHealthPage returned error: %v", err)
	}
	if strings.Contains(page, "<script>") {
		t.Errorf("expected script tag to be stripped/escaped, got %q", page)
	}
}

func TestAPIDocumentationMentionsCurrentRoutes(t *testing.T) {
	for _, want := range []string{"/v1/sessions", "/v1/sessions/{id}/navigate", "/v1/sessions/{id}/extract", "/healthz"} {
		if !strings.Contains(APIDocumentation, want) {
			t.Errorf("expected API docs to mention %q", want)
		}
	}
}
