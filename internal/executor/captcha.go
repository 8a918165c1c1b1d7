package executor

import (
	"context"

	"github.com/corvidlabs/helmsman/internal/content"
	"github.com/corvidlabs/helmsman/internal/session"
	"github.com/corvidlabs/helmsman/internal/types"
)

// DetectCaptcha runs the content-then-DOM CAPTCHA heuristic against the
// session's current page directly, without pulling a full Extract result.
func (e *Executor) DetectCaptcha(ctx context.Context, sess *session.Session, req types.DetectCaptchaRequest) (*types.DetectCaptchaResult, error) {
	if err := sess.CheckQuota("requests"); err != nil {
		return nil, err
	}
	sess.RecordRequest()

	timeout, err := validateTimeout(req.Timeout)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, release := sess.AcquirePageWithRelease()
	if page == nil {
		return nil, types.NewBrowserOperationError("detect-captcha", types.ErrSessionPageNil)
	}
	defer release()

	p := page.Context(ctx)

	body, err := p.Element("body")
	if err != nil {
		return nil, types.NewBrowserOperationError("detect-captcha", err)
	}
	raw, err := body.Text()
	if err != nil {
		return nil, types.NewBrowserOperationError("detect-captcha", err)
	}

	text := content.Normalize(raw)
	probe := func(selector string) bool {
		has, _, err := p.Has(selector)
		return err == nil && has
	}

	detection := e.detectCaptcha(text, probe)

	return &types.DetectCaptchaResult{CaptchaDetection: detection}, nil
}

// detectCaptcha runs the content-then-DOM heuristic using the wired
// selectors.Manager's current patterns when present, falling back to
// content.DetectCaptcha's built-in defaults when no manager is configured.
func (e *Executor) detectCaptcha(text string, probe content.ElementProbe) types.CaptchaDetection {
	if e.Selectors == nil {
		return content.DetectCaptcha(text, probe)
	}
	sel := e.Selectors.Get()
	textMarkers := append(append([]string{}, sel.CaptchaKeywords...), sel.ChallengeScriptText...)
	return content.DetectCaptchaWithPatterns(text, probe, textMarkers, sel.CaptchaDOMSelectors)
}
