// Package selectors provides CAPTCHA/bot-challenge detection pattern loading
// and management, consulted by internal/content's detection heuristic.
package selectors

import (
	"embed"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectorsFS embed.FS

// Selectors contains all CAPTCHA/bot-challenge detection patterns consulted
// by the detect-captcha heuristic: text markers checked against normalized
// page content, and DOM selectors probed against the live page.
type Selectors struct {
	BlockedPageText    []string `yaml:"blocked_page_text"`
	CaptchaKeywords    []string `yaml:"captcha_keywords"`
	ChallengeScriptText []string `yaml:"challenge_script_text"`
	CaptchaDOMSelectors []string `yaml:"captcha_dom_selectors"`
	CaptchaFramePattern string   `yaml:"captcha_frame_pattern"`
}

var (
	instance *Selectors
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Selectors instance.
// Patterns are loaded from the embedded selectors.yaml file.
func Get() *Selectors {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load selectors, using defaults")
			instance = defaultSelectors()
		}
	})
	return instance
}

// load reads selectors from the embedded YAML file.
func load() (*Selectors, error) {
	data, err := defaultSelectorsFS.ReadFile("selectors.yaml")
	if err != nil {
		return nil, err
	}

	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	log.Debug().
		Int("blocked_page_patterns", len(s.BlockedPageText)).
		Int("captcha_keyword_patterns", len(s.CaptchaKeywords)).
		Int("challenge_script_patterns", len(s.ChallengeScriptText)).
		Msg("Selectors loaded")

	return &s, nil
}

// defaultSelectors returns hardcoded fallback patterns.
func defaultSelectors() *Selectors {
	return &Selectors{
		BlockedPageText: []string{
			"access denied",
			"request blocked",
			"you have been blocked",
			"ip address has been blocked",
			"rate limit exceeded",
			"unusual traffic",
		},
		CaptchaKeywords: []string{
			"recaptcha",
			"hcaptcha",
			"prove you are human",
			"i am not a robot",
			"verify you are human",
			"security challenge",
		},
		ChallengeScriptText: []string{
			"just a moment",
			"checking your browser",
			"please wait",
			"ddos protection",
			"enable javascript and cookies",
			"anti-bot",
		},
		CaptchaDOMSelectors: []string{
			`iframe[src*="recaptcha"]`,
			`iframe[src*="hcaptcha"]`,
			`div[class*="captcha"]`,
			`div[id*="captcha"]`,
		},
		CaptchaFramePattern: "recaptcha.net",
	}
}
