package executor

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// maxNetworkCaptureHeaders bounds how many response headers are retained per
// capture, to prevent memory exhaustion from a pathological response.
const maxNetworkCaptureHeaders = 100

// networkCapture provides thread-safe storage for the main document
// response's status code and headers, captured via a CDP event listener
// rather than read back from rod (which has no API for it). It is the input
// Navigate feeds to internal/ratelimit.Detect once the page settles.
type networkCapture struct {
	mu         sync.RWMutex
	statusCode int
	headers    map[string]string
	url        string
}

func newNetworkCapture() *networkCapture {
	return &networkCapture{
		statusCode: 200,
		headers:    make(map[string]string),
	}
}

// setResponse records the latest Document response. Called from the event
// listener goroutine; safe for concurrent use with the reader methods below.
func (nc *networkCapture) setResponse(statusCode int, headers map[string]string, url string) {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	nc.statusCode = statusCode
	nc.headers = make(map[string]string, len(headers))
	for k, v := range headers {
		nc.headers[k] = v
	}
	nc.url = url
}

func (nc *networkCapture) StatusCode() int {
	nc.mu.RLock()
	defer nc.mu.RUnlock()
	return nc.statusCode
}

func (nc *networkCapture) Headers() map[string]string {
	nc.mu.RLock()
	defer nc.mu.RUnlock()
	result := make(map[string]string, len(nc.headers))
	for k, v := range nc.headers {
		result[k] = v
	}
	return result
}

// setupNetworkCapture enables the CDP Network domain on page and listens for
// Document responses, keeping the most recent one (so a redirect chain ends
// up reporting the final response, matching what the browser actually
// rendered). The returned cleanup function must be called once Navigate is
// done with the page; it stops the listener goroutine and disables the
// Network domain.
//
// Enabling Network domain is best-effort: if it fails, capture is returned
// with its zero-value defaults (status 200, no headers) and the caller
// degrades to body-only rate-limit detection.
func setupNetworkCapture(ctx context.Context, page *rod.Page) (*networkCapture, func()) {
	capture := newNetworkCapture()

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		log.Debug().Err(err).Msg("failed to enable Network domain for response capture")
		return capture, func() {}
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	pageWithCtx := page.Context(listenerCtx)

	var wg sync.WaitGroup
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			cancel()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				log.Warn().Msg("timeout waiting for network capture listener to stop")
			}
			if err := (proto.NetworkDisable{}).Call(page); err != nil {
				log.Debug().Err(err).Msg("failed to disable Network domain during cleanup")
			}
		})
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("recovered from panic in network capture listener")
			}
		}()

		waitFn := pageWithCtx.EachEvent(func(e *proto.NetworkResponseReceived) bool {
			select {
			case <-listenerCtx.Done():
				return true
			default:
			}

			if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
				return false
			}

			headers := make(map[string]string)
			for key, value := range e.Response.Headers {
				if len(headers) >= maxNetworkCaptureHeaders {
					break
				}
				headers[key] = value.Str()
			}
			capture.setResponse(e.Response.Status, headers, e.Response.URL)

			return false
		})
		waitFn()
	}()

	return capture, cleanup
}
