package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/corvidlabs/helmsman/internal/types"
)

// BenchmarkJSONDecode measures JSON request parsing performance.
// This tests the core JSON decoding path that every request goes through.
func BenchmarkJSONDecode(b *testing.B) {
	reqBody := `{"url":"https://example.com","wait_until":"load","timeout":60000000000}`

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var req types.NavigateRequest
		if err := json.Unmarshal([]byte(reqBody), &req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkJSONDecodeWithPool measures JSON decoding using pooled buffers.
func BenchmarkJSONDecodeWithPool(b *testing.B) {
	reqBody := `{"url":"https://example.com","wait_until":"load","timeout":60000000000}`
	reader := strings.NewReader(reqBody)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reader.Reset(reqBody)

		buf := getBuffer()
		_, _ = io.Copy(buf, reader)
		var req types.NavigateRequest
		if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
			b.Fatal(err)
		}
		putBuffer(buf)
	}
}

// BenchmarkJSONEncode measures JSON response encoding performance.
func BenchmarkJSONEncode(b *testing.B) {
	resp := types.ExtractResult{
		Content: strings.Repeat("x", 10000), // 10KB of extracted text
		Kind:    types.KindNews,
		Quality: &types.QualityMetrics{WordCount: 1800, Score: 0.82},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := json.Marshal(resp)
		if err != nil {
			b.Fatal(err)
		}
		_ = data
	}
}

// BenchmarkBufferPool measures sync.Pool allocation performance.
func BenchmarkBufferPool(b *testing.B) {
	b.Run("WithPool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := getBuffer()
			buf.WriteString("test data for buffer pool benchmark")
			putBuffer(buf)
		}
	})

	b.Run("WithoutPool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := bytes.NewBuffer(make([]byte, 0, 4096))
			buf.WriteString("test data for buffer pool benchmark")
			// No return to pool - simulates GC pressure
		}
	})
}

// BenchmarkSessionConfigParsing benchmarks the session-creation request body
// parsing path.
func BenchmarkSessionConfigParsing(b *testing.B) {
	cfg := types.SessionConfig{
		BrowserKind:    types.BrowserChromium,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		Stealth:        true,
		BlockResources: []string{"image", "font", "media"},
	}
	reqBody, _ := json.Marshal(cfg)

	b.Run("DirectUnmarshal", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var req types.SessionConfig
			_ = json.Unmarshal(reqBody, &req)
		}
	})

	b.Run("WithPooledBuffer", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			reader := bytes.NewReader(reqBody)
			buf := getBuffer()
			_, _ = io.Copy(buf, reader)
			var req types.SessionConfig
			_ = json.Unmarshal(buf.Bytes(), &req)
			putBuffer(buf)
		}
	})
}

// BenchmarkHTTPHandler benchmarks the HTTP handler without actual browser operations.
// This measures middleware + routing overhead.
func BenchmarkHTTPHandler(b *testing.B) {
	// Create a minimal handler that doesn't require a browser pool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simulate request parsing
		buf := getBuffer()
		defer putBuffer(buf)

		_, _ = io.Copy(buf, r.Body)
		var req types.NavigateRequest
		_ = json.Unmarshal(buf.Bytes(), &req)

		// Simulate response writing
		resp := types.NavigateResult{URL: req.URL}
		_ = json.NewEncoder(w).Encode(resp)
	})

	reqBody := `{"url":"https://example.com"}`

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess_deadbeef/navigate", strings.NewReader(reqBody))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}
}

// BenchmarkBatchRequestParsing benchmarks parsing a batch request with a
// mixed set of sub-operations.
func BenchmarkBatchRequestParsing(b *testing.B) {
	req := types.BatchRequest{
		Ops: []types.BatchOp{
			{Operation: "navigate", Navigate: &types.NavigateRequest{URL: "https://example.com"}},
			{Operation: "extract", Extract: &types.ExtractRequest{Type: types.ExtractText}},
			{Operation: "screenshot", Screenshot: &types.ScreenshotRequest{FullPage: true}},
		},
		Parallel: false,
	}
	reqBody, _ := json.Marshal(req)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var decoded types.BatchRequest
		_ = json.Unmarshal(reqBody, &decoded)
	}
}

// BenchmarkResponseBuffer benchmarks response buffer pool.
func BenchmarkResponseBuffer(b *testing.B) {
	b.Run("WithPool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := getResponseBuffer()
			buf.WriteString(strings.Repeat("x", 8000)) // Typical HTML size
			putResponseBuffer(buf)
		}
	})

	b.Run("WithoutPool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			buf := bytes.NewBuffer(make([]byte, 0, 8192))
			buf.WriteString(strings.Repeat("x", 8000))
		}
	})
}
