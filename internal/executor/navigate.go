package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"

	"github.com/corvidlabs/helmsman/internal/ratelimit"
	"github.com/corvidlabs/helmsman/internal/security"
	"github.com/corvidlabs/helmsman/internal/session"
	"github.com/corvidlabs/helmsman/internal/sitememory"
	"github.com/corvidlabs/helmsman/internal/types"
)

// navigateMaxAttempts bounds the retry loop for transient navigation
// failures. backoff doubles each attempt, matching the pacer's own
// failure-delay doubling (internal/pacer.NextDelay), capped by
// navigateMaxBackoff.
const (
	navigateMaxAttempts = 3
	navigateBaseBackoff = 500 * time.Millisecond
	navigateMaxBackoff  = 4 * time.Second
)

// Navigate drives the session's page to req.URL, waiting for the requested
// load condition, and retries transient failures with exponential backoff
// before surfacing a BrowserOperationError.
func (e *Executor) Navigate(ctx context.Context, sess *session.Session, req types.NavigateRequest) (*types.NavigateResult, error) {
	if err := sess.CheckQuota("pages"); err != nil {
		return nil, err
	}

	if err := security.ValidateURLWithMaxLength(ctx, req.URL, e.MaxURLLength); err != nil {
		return nil, types.NewValidationError("url", err.Error())
	}

	sess.RecordRequest()

	timeout, err := validateTimeout(req.Timeout)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	domain := domainOf(req.URL)
	e.pace(ctx, domain, true)

	page, release := sess.AcquirePageWithRelease()
	if page == nil {
		return nil, types.NewBrowserOperationError("navigate", types.ErrSessionPageNil)
	}
	defer release()

	capture, stopCapture := setupNetworkCapture(ctx, page)
	defer stopCapture()

	start := time.Now()
	var lastErr error

retryLoop:
	for attempt := 0; attempt < navigateMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := navigateBaseBackoff * time.Duration(1<<uint(attempt-1))
			if backoff > navigateMaxBackoff {
				backoff = navigateMaxBackoff
			}
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				lastErr = ctx.Err()
				break retryLoop
			}
			timer.Stop()
		}

		lastErr = navigateOnce(ctx, page, req.URL, req.WaitUntil)
		if lastErr == nil {
			break
		}

		log.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Str("url", security.RedactURL(req.URL)).
			Msg("navigate attempt failed, will retry")

		e.pace(ctx, domain, false)
	}

	elapsed := time.Since(start)
	success := lastErr == nil

	rateLimited := false
	if body, err := page.HTML(); err == nil {
		info := ratelimit.Detect(capture.StatusCode(), body)
		rateLimited = info.Detected
		if info.Detected {
			log.Warn().
				Str("domain", domain).
				Str("error_code", info.ErrorCode).
				Str("category", string(info.Category)).
				Msg("rate-limit or block pattern detected on navigate")
		}
	}

	if e.Pacer != nil {
		e.Pacer.RecordDomainOutcome(domain, elapsed.Milliseconds(), success, rateLimited)
	}
	e.recordOutcome(sess, success, elapsed)

	if lastErr != nil {
		sess.MarkError(lastErr)
		return nil, types.NewBrowserOperationErrorWithDetails("navigate", lastErr, map[string]interface{}{
			"url":      security.RedactURL(req.URL),
			"attempts": navigateMaxAttempts,
		})
	}

	sess.RecordPageLoad()

	info, err := page.Info()
	title := ""
	finalURL := req.URL
	if err == nil && info != nil {
		title = info.Title
		finalURL = info.URL
	}
	sess.SetURL(finalURL, title)

	if e.SiteMemory != nil {
		e.updateSiteMemory(domain, success, elapsed)
	}

	return &types.NavigateResult{
		URL:         finalURL,
		Title:       title,
		PagesLoaded: sess.Stats().PagesLoaded,
		Duration:    elapsed,
	}, nil
}

func navigateOnce(ctx context.Context, page *rod.Page, rawURL string, wait types.WaitCondition) error {
	p := page.Context(ctx)

	if err := p.Navigate(rawURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", security.RedactURL(rawURL), err)
	}

	switch wait {
	case types.WaitDOMContentLoaded:
		return p.WaitStable(300 * time.Millisecond)
	case types.WaitCommit:
		return nil
	case types.WaitNetworkIdle:
		return p.WaitIdle(5 * time.Second)
	default:
		return p.WaitLoad()
	}
}

func (e *Executor) updateSiteMemory(domain string, success bool, elapsed time.Duration) {
	if domain == "" {
		return
	}
	siteURL := "https://" + domain
	err := e.SiteMemory.UpdateAccessStats(siteURL, success, map[string]float64{
		"load_time": float64(elapsed.Milliseconds()),
	})
	if err == nil {
		return
	}
	if errors.Is(err, sitememory.ErrNotFound) {
		if saveErr := e.SiteMemory.Save(sitememory.Record{SiteURL: siteURL, LastAccessed: time.Now()}); saveErr != nil {
			log.Debug().Err(saveErr).Str("site", siteURL).Msg("failed to seed site memory")
		}
		return
	}
	log.Debug().Err(err).Str("site", siteURL).Msg("failed to update site memory")
}

func domainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
