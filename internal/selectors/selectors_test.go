package selectors

import (
	"testing"
)

func TestGetSelectors(t *testing.T) {
	sel := Get()

	if sel == nil {
		t.Fatal("Get() returned nil")
	}

	if len(sel.BlockedPageText) == 0 {
		t.Error("Expected blocked page text patterns")
	}

	if len(sel.CaptchaKeywords) == 0 {
		t.Error("Expected captcha keyword patterns")
	}

	if len(sel.ChallengeScriptText) == 0 {
		t.Error("Expected challenge script text patterns")
	}

	if len(sel.CaptchaDOMSelectors) == 0 {
		t.Error("Expected captcha DOM selectors")
	}

	if sel.CaptchaFramePattern == "" {
		t.Error("Expected captcha frame pattern")
	}
}

func TestGetSelectorsSingleton(t *testing.T) {
	sel1 := Get()
	sel2 := Get()

	if sel1 != sel2 {
		t.Error("Expected Get() to return the same instance")
	}
}

func TestDefaultSelectors(t *testing.T) {
	sel := defaultSelectors()

	expectedBlockedPageText := []string{
		"access denied",
		"request blocked",
		"you have been blocked",
		"ip address has been blocked",
		"rate limit exceeded",
		"unusual traffic",
	}
	if len(sel.BlockedPageText) != len(expectedBlockedPageText) {
		t.Errorf("Expected %d blocked page patterns, got %d", len(expectedBlockedPageText), len(sel.BlockedPageText))
	}

	expectedCaptchaKeywords := []string{
		"recaptcha",
		"hcaptcha",
		"prove you are human",
		"i am not a robot",
		"verify you are human",
		"security challenge",
	}
	if len(sel.CaptchaKeywords) != len(expectedCaptchaKeywords) {
		t.Errorf("Expected %d captcha keyword patterns, got %d", len(expectedCaptchaKeywords), len(sel.CaptchaKeywords))
	}

	expectedChallengeScript := []string{
		"just a moment",
		"checking your browser",
		"please wait",
		"ddos protection",
		"enable javascript and cookies",
		"anti-bot",
	}
	if len(sel.ChallengeScriptText) != len(expectedChallengeScript) {
		t.Errorf("Expected %d challenge script patterns, got %d", len(expectedChallengeScript), len(sel.ChallengeScriptText))
	}

	if sel.CaptchaFramePattern != "recaptcha.net" {
		t.Errorf("Unexpected captcha frame pattern: %s", sel.CaptchaFramePattern)
	}
}

func TestSelectorsContainExpectedPatterns(t *testing.T) {
	sel := Get()

	expectedPatterns := map[string][]string{
		"blocked_page_text":    {"access denied", "rate limit exceeded"},
		"captcha_keywords":     {"recaptcha"},
		"challenge_script_text": {"just a moment", "checking your browser"},
	}

	for category, patterns := range expectedPatterns {
		var list []string
		switch category {
		case "blocked_page_text":
			list = sel.BlockedPageText
		case "captcha_keywords":
			list = sel.CaptchaKeywords
		case "challenge_script_text":
			list = sel.ChallengeScriptText
		}

		for _, expected := range patterns {
			found := false
			for _, p := range list {
				if p == expected {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Expected pattern %q not found in %s", expected, category)
			}
		}
	}
}
