package content

import (
	"fmt"
	"strings"

	"github.com/corvidlabs/helmsman/internal/types"
)

// captchaTextMarkers are lowercase substrings that show up on CAPTCHA and
// bot-challenge interstitials. Checked only once content is already
// suspiciously short, since these words can legitimately appear in an
// article about CAPTCHAs. Default fallback when no selectors.Manager is
// wired; a wired manager's patterns take precedence via DetectCaptchaWithPatterns.
var captchaTextMarkers = []string{
	"recaptcha", "hcaptcha",
	"prove you are human", "i am not a robot",
	"verify you are human", "security challenge",
	"anti-bot", "bot detection", "access denied",
	"please complete the security check",
}

// captchaSelectors are DOM probes for CAPTCHA widgets, checked in order via
// the caller-supplied ElementProbe.
var captchaSelectors = []string{
	`iframe[src*="recaptcha"]`,
	`iframe[src*="hcaptcha"]`,
	`div[class*="captcha"]`,
	`div[id*="captcha"]`,
	`div[class*="recaptcha"]`,
	`div[id*="recaptcha"]`,
	`div[class*="hcaptcha"]`,
	`div[id*="hcaptcha"]`,
}

// ElementProbe reports whether at least one element matching selector
// exists on the page currently under inspection. Executors pass a closure
// over *rod.Page (page.Has); tests pass a canned map.
type ElementProbe func(selector string) bool

// DetectCaptcha runs the content-then-DOM heuristic chain using the
// built-in default pattern lists. See DetectCaptchaWithPatterns for the
// variant that takes patterns from a selectors.Manager.
func DetectCaptcha(text string, probe ElementProbe) types.CaptchaDetection {
	return DetectCaptchaWithPatterns(text, probe, captchaTextMarkers, captchaSelectors)
}

// DetectCaptchaWithPatterns runs the content-then-DOM heuristic chain: a page
// with very little text is almost certainly an interstitial; a page with a
// little more text but CAPTCHA vocabulary is probably one too; failing both,
// a direct DOM probe is the tie-breaker. probe may be nil to skip the DOM
// stage (e.g. when only raw text, not a live page, is available).
// textMarkers and domSelectors are typically sourced from a selectors.Manager
// so operators can tune detection without a binary rebuild.
func DetectCaptchaWithPatterns(text string, probe ElementProbe, textMarkers, domSelectors []string) types.CaptchaDetection {
	q := Quality(text)

	if q.CharCount < 500 {
		return types.CaptchaDetection{
			IsCaptcha: true,
			Reason:    fmt.Sprintf("insufficient content length: %d chars", q.CharCount),
		}
	}

	if q.CharCount < 1000 {
		lower := strings.ToLower(text)
		for _, marker := range textMarkers {
			if strings.Contains(lower, marker) {
				return types.CaptchaDetection{
					IsCaptcha: true,
					Reason:    "captcha pattern found in low-content page",
				}
			}
		}
	}

	if probe != nil {
		for _, selector := range domSelectors {
			if probe(selector) {
				return types.CaptchaDetection{
					IsCaptcha: true,
					Reason:    "captcha element found: " + selector,
				}
			}
		}
	}

	return types.CaptchaDetection{IsCaptcha: false, Reason: "no captcha detected"}
}
