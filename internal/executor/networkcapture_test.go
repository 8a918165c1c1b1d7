package executor

import "testing"

func TestNetworkCaptureDefaultsToStatus200(t *testing.T) {
	nc := newNetworkCapture()
	if nc.StatusCode() != 200 {
		t.Errorf("expected default status 200, got %d", nc.StatusCode())
	}
	if len(nc.Headers()) != 0 {
		t.Errorf("expected no headers before any response, got %v", nc.Headers())
	}
}

func TestNetworkCaptureSetResponseUpdatesState(t *testing.T) {
	nc := newNetworkCapture()
	nc.setResponse(429, map[string]string{"retry-after": "30"}, "https://example.com/")

	if nc.StatusCode() != 429 {
		t.Errorf("expected status 429, got %d", nc.StatusCode())
	}
	if nc.Headers()["retry-after"] != "30" {
		t.Errorf("expected retry-after header to be captured, got %v", nc.Headers())
	}
}

func TestNetworkCaptureHeadersReturnsDefensiveCopy(t *testing.T) {
	nc := newNetworkCapture()
	nc.setResponse(200, map[string]string{"x-a": "1"}, "")

	h := nc.Headers()
	h["x-a"] = "mutated"

	if nc.Headers()["x-a"] != "1" {
		t.Errorf("mutating the returned map affected internal state: %v", nc.Headers())
	}
}

func TestNetworkCaptureLatestResponseWins(t *testing.T) {
	nc := newNetworkCapture()
	nc.setResponse(302, map[string]string{"location": "/next"}, "https://example.com/old")
	nc.setResponse(200, map[string]string{}, "https://example.com/new")

	if nc.StatusCode() != 200 {
		t.Errorf("expected latest status to win, got %d", nc.StatusCode())
	}
	if _, ok := nc.Headers()["location"]; ok {
		t.Errorf("expected headers replaced by latest response, still has %v", nc.Headers())
	}
}
