package types

import "time"

// SessionStatus represents a session's position in its state machine.
type SessionStatus string

// Session status values. Active transitions to Expired or Error one-way;
// there is no path back from either terminal state.
const (
	StatusActive  SessionStatus = "active"
	StatusIdle    SessionStatus = "idle"
	StatusExpired SessionStatus = "expired"
	StatusError   SessionStatus = "error"
)

// BrowserKind enumerates the engine families a session may request.
// Only Chromium is actually driven by this Browser Pool; the others are
// accepted at the config layer and rejected at session-creation time with
// a ValidationError, per the external-interfaces contract.
type BrowserKind string

const (
	BrowserChromium BrowserKind = "chromium"
	BrowserFirefox  BrowserKind = "firefox"
	BrowserWebkit   BrowserKind = "webkit"
)

// WaitCondition enumerates navigation completion conditions.
type WaitCondition string

const (
	WaitLoad            WaitCondition = "load"
	WaitDOMContentLoaded WaitCondition = "dom-content-loaded"
	WaitNetworkIdle     WaitCondition = "network-idle"
	WaitCommit          WaitCondition = "commit"
)

// ExtractType enumerates the kinds of content Extract can pull from a page.
type ExtractType string

const (
	ExtractText   ExtractType = "text"
	ExtractHTML   ExtractType = "html"
	ExtractTable  ExtractType = "table"
	ExtractLinks  ExtractType = "links"
	ExtractImages ExtractType = "images"
)

// InteractAction enumerates the pointer/keyboard actions Interact supports.
type InteractAction string

const (
	ActionClick       InteractAction = "click"
	ActionDoubleClick InteractAction = "double-click"
	ActionRightClick  InteractAction = "right-click"
	ActionType        InteractAction = "type"
	ActionSelect      InteractAction = "select"
	ActionScroll      InteractAction = "scroll"
	ActionHover       InteractAction = "hover"
)

// ContentKind enumerates the content-type classification used by structured
// extraction, chunking, and type detection.
type ContentKind string

const (
	KindGeneral   ContentKind = "general"
	KindNews      ContentKind = "news"
	KindForum     ContentKind = "forum"
	KindFinancial ContentKind = "financial"
	KindEcommerce ContentKind = "ecommerce"
	KindBlog      ContentKind = "blog"
)

// Viewport bounds a browser window in device-independent pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SessionConfig carries request-time overrides for a new session. The
// Session Registry applies the fields that are set to the session's page;
// unset fields keep the page's own settings.
type SessionConfig struct {
	Viewport       Viewport        `json:"viewport,omitempty"`
	UserAgent      string          `json:"user_agent,omitempty"`
	Stealth        bool            `json:"stealth"`
	BlockResources []string        `json:"block_resources,omitempty"`
	Timeout        time.Duration   `json:"timeout,omitempty"`
	JSEnabled      bool            `json:"js_enabled"`
	IgnoreTLSError bool            `json:"ignore_tls_errors"`
	BrowserKind    BrowserKind     `json:"browser_kind,omitempty"`
	// Proxy, if set, overrides the pool's default proxy for this session
	// only. The session's browser is spawned outside the pool and is not
	// shared with other sessions.
	Proxy string `json:"proxy,omitempty"`
}

// QuotaLimits are the static per-session hard limits described in §3.
type QuotaLimits struct {
	MaxDuration     time.Duration
	MaxRequests     int64
	MaxPages        int64
	MaxScreenshots  int64
	MaxInteractions int64
	MaxMemoryMB     int64
}

// DefaultQuotaLimits returns the spec's default quota values.
func DefaultQuotaLimits() QuotaLimits {
	return QuotaLimits{
		MaxDuration:     300 * time.Second,
		MaxRequests:     1000,
		MaxPages:        100,
		MaxScreenshots:  50,
		MaxInteractions: 500,
		MaxMemoryMB:     512,
	}
}

// SessionStats are the non-negative counters tracked per session.
type SessionStats struct {
	Requests      int64         `json:"requests"`
	PagesLoaded   int64         `json:"pages_loaded"`
	Screenshots   int64         `json:"screenshots"`
	Interactions  int64         `json:"interactions"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     string        `json:"last_error,omitempty"`
}

// SessionInfo is the read-only projection returned by list/get/stats.
type SessionInfo struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id,omitempty"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	URL          string        `json:"url,omitempty"`
	Title        string        `json:"title,omitempty"`
	Config       SessionConfig `json:"config"`
	Stats        SessionStats  `json:"stats"`
}

// NavigateRequest is the input to the Navigate operation.
type NavigateRequest struct {
	SessionID string        `json:"session_id"`
	URL       string        `json:"url"`
	WaitUntil WaitCondition `json:"wait_until,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// NavigateResult is the output of a successful Navigate operation.
type NavigateResult struct {
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	PagesLoaded int64         `json:"pages_loaded"`
	Duration    time.Duration `json:"duration"`
}

// ExtractRequest is the input to the Extract operation.
type ExtractRequest struct {
	SessionID string        `json:"session_id"`
	Type      ExtractType   `json:"type"`
	Selector  string        `json:"selector,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// QualityMetrics is the content-quality rubric's output, per §4.5.
type QualityMetrics struct {
	WordCount      int     `json:"word_count"`
	LineCount      int     `json:"line_count"`
	CharCount      int     `json:"char_count"`
	Score          float64 `json:"score"`
	Meaningful     bool    `json:"meaningful"`
}

// CaptchaDetection is the result of the captcha-detection heuristic.
type CaptchaDetection struct {
	IsCaptcha bool   `json:"is_captcha"`
	Reason    string `json:"reason"`
}

// DetectCaptchaRequest is the input to the directly-callable
// detect-captcha operation.
type DetectCaptchaRequest struct {
	SessionID string        `json:"session_id"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// DetectCaptchaResult is the output of the detect-captcha operation.
type DetectCaptchaResult struct {
	CaptchaDetection
}

// Chunk is a size-bounded, boundary-aligned span of text produced by
// semantic chunking.
type Chunk struct {
	Content         string  `json:"content"`
	ChunkType       string  `json:"chunk_type"`
	StartIndex      int     `json:"start_index"`
	EndIndex        int     `json:"end_index"`
	Confidence      float64 `json:"confidence"`
	Size            int     `json:"size"`
	WordCount       int     `json:"word_count"`
	PreserveStructure bool  `json:"preserve_structure"`
}

// Link is a harvested anchor element.
type Link struct {
	URL     string `json:"url"`
	Text    string `json:"text"`
	BaseURL string `json:"base_url"`
}

// Image is a harvested img element.
type Image struct {
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Table is a harvested table's cell grid.
type Table struct {
	Rows    [][]string `json:"rows"`
	NumRows int        `json:"num_rows"`
	NumCols int        `json:"num_cols"`
}

// ExtractResult is the output of the Extract operation. Content carries the
// type-appropriate primary payload (flattened for direct access); Data
// carries the richer structured block.
type ExtractResult struct {
	Content   interface{}       `json:"content"`
	Quality   *QualityMetrics   `json:"quality,omitempty"`
	Captcha   *CaptchaDetection `json:"captcha,omitempty"`
	Kind      ContentKind       `json:"kind,omitempty"`
	KindScore float64           `json:"kind_confidence,omitempty"`
	Chunks    []Chunk           `json:"chunks,omitempty"`
	Duplicate bool              `json:"duplicate,omitempty"`
	Data      interface{}       `json:"data,omitempty"`
}

// InteractRequest is the input to the Interact operation.
type InteractRequest struct {
	SessionID string         `json:"session_id"`
	Action    InteractAction `json:"action"`
	Selector  string         `json:"selector"`
	Value     string         `json:"value,omitempty"`
	Timeout   time.Duration  `json:"timeout,omitempty"`
}

// InteractResult is the output of a successful Interact operation.
type InteractResult struct {
	Action   InteractAction `json:"action"`
	Selector string         `json:"selector"`
	Duration time.Duration  `json:"duration"`
}

// ScreenshotRequest is the input to the Screenshot operation.
type ScreenshotRequest struct {
	SessionID        string        `json:"session_id"`
	Selector         string        `json:"selector,omitempty"`
	FullPage         bool          `json:"full_page"`
	OutputPath       string        `json:"output_path,omitempty"`
	JPEGQuality      int           `json:"jpeg_quality,omitempty"`
	WaitForDynamic   bool          `json:"wait_for_dynamic"`
	Timeout          time.Duration `json:"timeout,omitempty"`
}

// ScreenshotResult is the output of a successful Screenshot operation.
type ScreenshotResult struct {
	Path     string `json:"path"`
	SizeByte int64  `json:"size_bytes"`
}

// BatchOp is a single operation descriptor inside a Batch request.
type BatchOp struct {
	Operation string          `json:"operation"`
	Navigate  *NavigateRequest  `json:"navigate,omitempty"`
	Extract   *ExtractRequest   `json:"extract,omitempty"`
	Interact  *InteractRequest  `json:"interact,omitempty"`
	Screenshot *ScreenshotRequest `json:"screenshot,omitempty"`
}

// BatchRequest is the input to the Batch operation.
type BatchRequest struct {
	SessionID    string    `json:"session_id"`
	Ops          []BatchOp `json:"ops"`
	Parallel     bool      `json:"parallel"`
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
}

// BatchOpResult is one operation's outcome inside a BatchResult.
type BatchOpResult struct {
	Operation string      `json:"operation"`
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// BatchResult is the output of the Batch operation.
type BatchResult struct {
	Results      []BatchOpResult `json:"results"`
	SuccessCount int             `json:"success_count"`
	FailureCount int             `json:"failure_count"`
}
