// Package session provides session management for persistent browser contexts.
// Sessions allow clients to maintain state (cookies, local storage, quota
// counters) across a sequence of operations issued against a single id.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/corvidlabs/helmsman/internal/browser"
	"github.com/corvidlabs/helmsman/internal/config"
	"github.com/corvidlabs/helmsman/internal/security"
	"github.com/corvidlabs/helmsman/internal/types"
)

// Maximum number of concurrent page references allowed per session.
// This prevents unbounded growth from bugs or malicious usage.
const maxPageReferences = 100

// statusValue is the atomic-friendly encoding of types.SessionStatus.
type statusValue int32

const (
	statusActive statusValue = iota
	statusIdle
	statusExpired
	statusError
)

func (s statusValue) toType() types.SessionStatus {
	switch s {
	case statusIdle:
		return types.StatusIdle
	case statusExpired:
		return types.StatusExpired
	case statusError:
		return types.StatusError
	default:
		return types.StatusActive
	}
}

// Session represents a persistent browser session and its quota/statistics
// state machine.
//
// Lock ordering: when acquiring multiple locks, always acquire opMu before
// mu.
//   - opMu: serializes operations on the session (coarse-grained)
//   - mu: protects Page/URL/Title field access (fine-grained)
//
// Never hold mu while performing slow I/O operations.
type Session struct {
	ID        string
	OwnerID   string
	Browser   *rod.Browser
	// Dedicated marks a session whose Browser was spawned outside the pool
	// (e.g. via a per-session proxy override) and must be closed directly
	// on destroy rather than returned to the pool for reuse.
	Dedicated bool
	Page      *rod.Page
	Config    types.SessionConfig
	Quota     types.QuotaLimits
	CreatedAt time.Time
	// blockCleanup stops the resource-blocking request listeners started for
	// this session's page, if any were. Must be called before the page is
	// closed to avoid leaking its goroutines.
	blockCleanup func()
	lastUsed  atomic.Int64 // Unix nano timestamp for lock-free access
	status    atomic.Int32 // statusValue

	url   string
	title string
	mu    sync.Mutex // Protects Page/url/title

	// Quota counters, incremented atomically as operations execute.
	requests     atomic.Int64
	pagesLoaded  atomic.Int64
	screenshots  atomic.Int64
	interactions atomic.Int64
	errorCount   atomic.Int64
	lastError    atomic.Value // string

	// Reference counting for safe page access during concurrent destroy
	refCount atomic.Int32 // Number of active page references
	closing  atomic.Bool  // Set to true when session is being destroyed

	// Operation mutex to prevent concurrent operations on the same session.
	// Always acquire opMu BEFORE mu when both are needed.
	opMu sync.Mutex
}

// Manager handles session lifecycle and cleanup.
// It maintains a map of active sessions and periodically cleans up expired ones.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	config   *config.Config
	pool     *browser.Pool // Pool reference for returning browsers on cleanup
	stopCh   chan struct{}
	wg       sync.WaitGroup // Track background goroutines for clean shutdown
}

// NewManager creates a new session manager.
// It starts a background goroutine for session cleanup.
// The pool parameter is used to return browsers when sessions are destroyed.
func NewManager(cfg *config.Config, pool *browser.Pool) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		config:   cfg,
		pool:     pool,
		stopCh:   make(chan struct{}),
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.cleanupRoutine()
	}()

	log.Info().
		Dur("ttl", cfg.SessionTTL).
		Dur("cleanup_interval", cfg.SessionCleanupInterval).
		Int("max_sessions", cfg.MaxSessions).
		Msg("Session manager initialized")

	return m
}

// Create admits a new session under the registry lock (so the active-session
// count check and the insert happen atomically), generates a fresh id,
// obtains a page from brow, applies the fields of cfg that are set to that
// page (unset fields keep the page's own settings), and registers the
// session with cfg recorded as given. The browser is returned to the pool on
// any error path.
func (m *Manager) Create(cfg types.SessionConfig, ownerID string, brow *rod.Browser) (*Session, error) {
	return m.create(cfg, ownerID, brow, false)
}

// CreateDedicated admits a session whose browser was spawned outside the
// pool (e.g. with a per-session proxy). The browser is closed directly on
// destroy instead of being returned to the pool for reuse by other sessions.
func (m *Manager) CreateDedicated(cfg types.SessionConfig, ownerID string, brow *rod.Browser) (*Session, error) {
	return m.create(cfg, ownerID, brow, true)
}

func (m *Manager) releaseBrowser(dedicated bool, brow *rod.Browser) {
	if brow == nil {
		return
	}
	if dedicated {
		if err := brow.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing dedicated session browser")
		}
		return
	}
	if m.pool != nil {
		m.pool.Release(brow)
	}
}

func (m *Manager) create(cfg types.SessionConfig, ownerID string, brow *rod.Browser, dedicated bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.config.MaxSessions {
		m.releaseBrowser(dedicated, brow)
		return nil, types.NewResourceLimitError("sessions", int64(m.config.MaxSessions), int64(len(m.sessions)))
	}

	id, err := security.GenerateSessionID()
	if err != nil {
		m.releaseBrowser(dedicated, brow)
		return nil, err
	}
	// Extremely unlikely collision on the 32-bit id space; regenerate once.
	if _, exists := m.sessions[id]; exists {
		id, err = security.GenerateSessionID()
		if err != nil {
			m.releaseBrowser(dedicated, brow)
			return nil, err
		}
	}

	page, err := brow.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		m.releaseBrowser(dedicated, brow)
		return nil, types.NewBrowserOperationError("create_page", err)
	}

	blockCleanup, err := applySessionConfig(page, cfg)
	if err != nil {
		if closeErr := page.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Error closing page after session config failure")
		}
		m.releaseBrowser(dedicated, brow)
		return nil, types.NewBrowserOperationError("apply_session_config", err)
	}

	now := time.Now()
	sess := &Session{
		ID:           id,
		OwnerID:      ownerID,
		Browser:      brow,
		Dedicated:    dedicated,
		Page:         page,
		Config:       cfg,
		Quota:        types.DefaultQuotaLimits(),
		CreatedAt:    now,
		blockCleanup: blockCleanup,
	}
	sess.lastUsed.Store(now.UnixNano())
	sess.status.Store(int32(statusActive))
	sess.lastError.Store("")

	m.sessions[id] = sess

	log.Info().
		Str("session_id", id).
		Int("total_sessions", len(m.sessions)).
		Msg("Session created")

	return sess, nil
}

// applySessionConfig applies cfg's anti-detection and page-behavior options
// to a freshly created page, before it is handed to the caller or navigated
// anywhere. Returns the cleanup function for any resource-blocking listeners
// started, which the caller must invoke before closing the page.
func applySessionConfig(page *rod.Page, cfg types.SessionConfig) (cleanup func(), err error) {
	if cfg.Stealth {
		if err := browser.ApplyStealthToPage(page); err != nil {
			return nil, err
		}
	}

	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		if err := browser.SetViewport(page, cfg.Viewport.Width, cfg.Viewport.Height); err != nil {
			return nil, err
		}
	}

	if cfg.UserAgent != "" {
		if err := browser.SetUserAgent(page, cfg.UserAgent); err != nil {
			return nil, err
		}
	}

	if !cfg.JSEnabled {
		if err := proto.EmulationSetScriptExecutionDisabled{Value: true}.Call(page); err != nil {
			return nil, err
		}
	}

	var blockImages, blockCSS, blockFonts, blockMedia bool
	for _, kind := range cfg.BlockResources {
		switch kind {
		case "image":
			blockImages = true
		case "stylesheet":
			blockCSS = true
		case "font":
			blockFonts = true
		case "media":
			blockMedia = true
			// "script" and "other" have no dedicated pattern in
			// browser.BlockResources and are left unblocked.
		}
	}

	cleanup = func() {}
	if blockImages || blockCSS || blockFonts || blockMedia {
		cleanup, err = browser.BlockResources(context.Background(), page, blockImages, blockCSS, blockFonts, blockMedia)
		if err != nil {
			return nil, err
		}
	}

	return cleanup, nil
}

// Get retrieves a session by ID.
// Returns a ValidationError if id is not shaped like sess_[0-9a-f]{8},
// SessionNotFoundError if no such session exists or it is being destroyed,
// and InvalidSessionError if the session has exceeded its TTL (measured
// against CreatedAt, not idle time) or its max-duration quota. A session
// found invalid this way is closed and evicted on the spot rather than
// handed back to the caller. Updates the LastUsed timestamp on access.
func (m *Manager) Get(id string) (*Session, error) {
	if msg := security.ValidateSessionID(id); msg != "" {
		return nil, types.NewValidationError("session_id", msg)
	}

	m.mu.RLock()
	sess, exists := m.sessions[id]
	if !exists {
		m.mu.RUnlock()
		return nil, types.NewSessionNotFoundError(id)
	}

	isClosing := sess.closing.Load()
	m.mu.RUnlock()

	if isClosing {
		return nil, types.NewSessionNotFoundError(id)
	}

	if reason := sess.expiryReason(m.config); reason != "" {
		m.mu.Lock()
		sess.closing.Store(true)
		sess.status.Store(int32(statusExpired))
		delete(m.sessions, id)
		m.mu.Unlock()

		go m.evict(sess)

		return nil, types.NewInvalidSessionError(id, reason)
	}

	sess.Touch()

	return sess, nil
}

// expiryReason reports why sess is no longer valid, or "" if it is still
// live. TTL is computed against CreatedAt per the documented choice to
// preserve creation-time expiry rather than switch to idle-timeout
// semantics, which would alter the failure behavior of long-lived sessions.
func (s *Session) expiryReason(cfg *config.Config) string {
	now := time.Now()
	if cfg.SessionTTL > 0 && now.Sub(s.CreatedAt) > cfg.SessionTTL {
		return "Session expired"
	}
	if s.Quota.MaxDuration > 0 && now.Sub(s.CreatedAt) > s.Quota.MaxDuration {
		return "Session exceeded its maximum duration quota"
	}
	return ""
}

// evict tears down a session found expired by Get, outside the registry
// lock. Mirrors the single-session teardown cleanupExpired performs for a
// batch of expired sessions.
func (m *Manager) evict(sess *Session) {
	sess.waitForReferences(2 * time.Second)

	sess.mu.Lock()
	page := sess.Page
	sess.Page = nil
	sess.mu.Unlock()

	if page != nil {
		if sess.blockCleanup != nil {
			sess.blockCleanup()
		}
		if err := page.Close(); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("Error closing evicted session page")
		}
	}

	m.releaseBrowser(sess.Dedicated, sess.Browser)

	log.Info().
		Str("session_id", sess.ID).
		Dur("lifetime", time.Since(sess.CreatedAt)).
		Msg("Session evicted on access after expiry")
}

// Destroy removes a session and closes its resources.
// The browser is returned to the pool after cleanup.
// Uses reference counting to safely wait for in-flight page operations.
// Returns ErrSessionInUse if the session is still being used after timeout.
func (m *Manager) Destroy(id string) error {
	m.mu.Lock()
	sess, exists := m.sessions[id]
	if exists {
		sess.closing.Store(true)
	}
	m.mu.Unlock()

	if !exists {
		return types.NewSessionNotFoundError(id)
	}

	if !sess.waitForReferences(5 * time.Second) {
		log.Warn().
			Str("session_id", id).
			Int32("ref_count", sess.refCount.Load()).
			Msg("Session destroy: timed out waiting for page references, session marked for cleanup")
		return types.ErrSessionInUse
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	sess.mu.Lock()
	page := sess.Page
	sess.Page = nil
	sess.mu.Unlock()

	if page != nil {
		if sess.blockCleanup != nil {
			sess.blockCleanup()
		}
		if err := page.Close(); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("Error closing session page during destroy")
		}
	}

	m.releaseBrowser(sess.Dedicated, sess.Browser)

	log.Info().
		Str("session_id", id).
		Dur("lifetime", time.Since(sess.CreatedAt)).
		Msg("Session destroyed")

	return nil
}

// List returns all active session IDs.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// cleanupRoutine periodically removes expired sessions.
func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(m.config.SessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.stopCh:
			return
		}
	}
}

// cleanupExpired removes sessions that have exceeded their TTL or quota
// duration. Uses two-phase cleanup to avoid holding the registry lock
// during slow I/O, and errgroup for bounded-concurrency teardown.
func (m *Manager) cleanupExpired() {
	now := time.Now()

	m.mu.Lock()
	var expired []*Session
	for id, sess := range m.sessions {
		// TTL is measured against CreatedAt, not idle time: the source this
		// was adapted from makes that same choice, and switching to an
		// idle-timeout would let an actively-used session live indefinitely,
		// which changes the failure semantics of long-lived sessions.
		overTTL := m.config.SessionTTL > 0 && now.Sub(sess.CreatedAt) > m.config.SessionTTL
		overDuration := sess.Quota.MaxDuration > 0 && now.Sub(sess.CreatedAt) > sess.Quota.MaxDuration
		if overTTL || overDuration {
			sess.closing.Store(true)
			sess.status.Store(int32(statusExpired))
			expired = append(expired, sess)
			delete(m.sessions, id)
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	eg := new(errgroup.Group)
	eg.SetLimit(4)

	for _, session := range expired {
		sess := session
		eg.Go(func() error {
			if !sess.waitForReferences(2 * time.Second) {
				log.Warn().
					Str("session_id", sess.ID).
					Int32("ref_count", sess.refCount.Load()).
					Msg("Cleanup: references still held, proceeding with cleanup anyway")
			}

			sess.mu.Lock()
			page := sess.Page
			sess.Page = nil
			sess.mu.Unlock()

			if page != nil {
				if sess.blockCleanup != nil {
					sess.blockCleanup()
				}
				if err := page.Close(); err != nil {
					log.Warn().Err(err).Str("session_id", sess.ID).Msg("Error closing expired session page")
				}
			}

			m.releaseBrowser(sess.Dedicated, sess.Browser)

			log.Info().
				Str("session_id", sess.ID).
				Dur("lifetime", now.Sub(sess.CreatedAt)).
				Msg("Session expired and cleaned up")
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("Session cleanup encountered errors")
	}

	log.Debug().
		Int("expired_count", len(expired)).
		Int("remaining", remaining).
		Msg("Session cleanup completed")
}

// Close shuts down the session manager and cleans up all sessions.
// Returns all session browsers to the pool.
func (m *Manager) Close() error {
	close(m.stopCh)
	m.wg.Wait()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	if len(sessions) == 0 {
		log.Info().Msg("Session manager closed")
		return nil
	}

	eg := new(errgroup.Group)
	eg.SetLimit(4)

	for _, session := range sessions {
		sess := session
		eg.Go(func() error {
			sess.mu.Lock()
			page := sess.Page
			sess.Page = nil
			sess.mu.Unlock()

			if page != nil {
				if sess.blockCleanup != nil {
					sess.blockCleanup()
				}
				if err := page.Close(); err != nil {
					log.Warn().Err(err).Str("session_id", sess.ID).Msg("Error closing session page during shutdown")
				}
			}
			m.releaseBrowser(sess.Dedicated, sess.Browser)
			log.Debug().Str("session_id", sess.ID).Msg("Session closed during shutdown")
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		log.Error().Err(err).Msg("Session shutdown encountered errors")
	}

	log.Info().Msg("Session manager closed")
	return nil
}

// Touch updates the LastUsed timestamp for a session atomically and, if the
// session was Idle, transitions it back to Active.
func (s *Session) Touch() {
	s.lastUsed.Store(time.Now().UnixNano())
	s.status.CompareAndSwap(int32(statusIdle), int32(statusActive))
}

// LastUsedTime returns the last used time as a time.Time.
func (s *Session) LastUsedTime() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Status returns the session's current position in its state machine.
func (s *Session) Status() types.SessionStatus {
	return statusValue(s.status.Load()).toType()
}

// MarkIdle transitions an Active session to Idle. No-op from any other state.
func (s *Session) MarkIdle() {
	s.status.CompareAndSwap(int32(statusActive), int32(statusIdle))
}

// MarkError transitions the session into the terminal Error state, e.g.
// after its underlying browser process has died.
func (s *Session) MarkError(cause error) {
	s.status.Store(int32(statusError))
	if cause != nil {
		s.lastError.Store(cause.Error())
		s.errorCount.Add(1)
	}
}

// SetURL records the session's current page URL/title after a navigation.
func (s *Session) SetURL(url, title string) {
	s.mu.Lock()
	s.url = url
	s.title = title
	s.mu.Unlock()
}

// URLTitle returns the session's last-known URL and title.
func (s *Session) URLTitle() (url, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, s.title
}

// CheckQuota returns ResourceLimitError if incrementing the named quota
// counter by one would exceed its configured limit. Checked before the
// corresponding Record* call so a rejected operation is never counted.
func (s *Session) CheckQuota(kind string) error {
	var current, limit int64
	switch kind {
	case "requests":
		current, limit = s.requests.Load(), s.Quota.MaxRequests
	case "pages":
		current, limit = s.pagesLoaded.Load(), s.Quota.MaxPages
	case "screenshots":
		current, limit = s.screenshots.Load(), s.Quota.MaxScreenshots
	case "interactions":
		current, limit = s.interactions.Load(), s.Quota.MaxInteractions
	default:
		return nil
	}
	if limit > 0 && current >= limit {
		return types.NewResourceLimitError(kind, limit, current)
	}
	return nil
}

// RecordRequest increments the request counter. Every operation dispatched
// against a session counts as one request regardless of kind.
func (s *Session) RecordRequest() { s.requests.Add(1) }

// RecordPageLoad increments the pages-loaded counter.
func (s *Session) RecordPageLoad() { s.pagesLoaded.Add(1) }

// RecordScreenshot increments the screenshots counter.
func (s *Session) RecordScreenshot() { s.screenshots.Add(1) }

// RecordInteraction increments the interactions counter.
func (s *Session) RecordInteraction() { s.interactions.Add(1) }

// RecordError increments the error counter and stores the most recent
// error message, without changing the session's status.
func (s *Session) RecordError(err error) {
	s.errorCount.Add(1)
	if err != nil {
		s.lastError.Store(err.Error())
	}
}

// Stats returns a snapshot of the session's quota counters.
func (s *Session) Stats() types.SessionStats {
	lastErr, _ := s.lastError.Load().(string)
	return types.SessionStats{
		Requests:      s.requests.Load(),
		PagesLoaded:   s.pagesLoaded.Load(),
		Screenshots:   s.screenshots.Load(),
		Interactions:  s.interactions.Load(),
		Errors:        s.errorCount.Load(),
		TotalDuration: time.Since(s.CreatedAt),
		LastError:     lastErr,
	}
}

// Info projects the session into its read-only external representation.
func (s *Session) Info() types.SessionInfo {
	url, title := s.URLTitle()
	return types.SessionInfo{
		ID:           s.ID,
		OwnerID:      s.OwnerID,
		Status:       s.Status(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastUsedTime(),
		URL:          url,
		Title:        title,
		Config:       s.Config,
		Stats:        s.Stats(),
	}
}

// SafeGetPage returns the session's page reference while holding the lock.
// Deprecated: use AcquirePage/ReleasePage for proper reference counting.
func (s *Session) SafeGetPage() *rod.Page {
	return s.AcquirePage()
}

// AcquirePage returns the session's page with reference counting.
// This prevents the page from being closed while it's in use.
// Returns nil if the session is closing, the page is unavailable,
// or the maximum reference count has been reached.
// Caller MUST call ReleasePage when done with the page.
func (s *Session) AcquirePage() *rod.Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing.Load() || s.Page == nil {
		return nil
	}

	if s.refCount.Load() >= maxPageReferences {
		log.Warn().
			Str("session_id", s.ID).
			Int32("ref_count", s.refCount.Load()).
			Int("max", maxPageReferences).
			Msg("AcquirePage: maximum page references reached")
		return nil
	}

	s.refCount.Add(1)
	return s.Page
}

// AcquirePageWithRelease returns the session's page along with a release
// function that is safe to call exactly once.
func (s *Session) AcquirePageWithRelease() (page *rod.Page, release func()) {
	page = s.AcquirePage()
	if page == nil {
		return nil, func() {}
	}
	var once sync.Once
	return page, func() {
		once.Do(s.ReleasePage)
	}
}

// ReleasePage decrements the reference count after using a page.
// Must be called after AcquirePage when done with the page.
func (s *Session) ReleasePage() {
	newCount := s.refCount.Add(-1)
	if newCount < 0 {
		s.refCount.Store(0)
		log.Error().
			Str("session_id", s.ID).
			Int32("ref_count", newCount).
			Msg("ReleasePage: ref count went negative, resetting to 0 (more releases than acquires)")
	}
}

// waitForReferences waits for all page references to be released.
// Returns true if all references were released within the timeout.
func (s *Session) waitForReferences(timeout time.Duration) bool {
	if s.refCount.Load() <= 0 {
		return true
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return false
		case <-ticker.C:
			if s.refCount.Load() <= 0 {
				return true
			}
		}
	}
}

// GetCookies retrieves all cookies from the session's page.
func (s *Session) GetCookies() ([]*proto.NetworkCookie, error) {
	page := s.AcquirePage()
	if page == nil {
		return nil, types.ErrSessionPageNil
	}
	defer s.ReleasePage()

	return page.Cookies(nil)
}

// SetCookies sets cookies on the session's page.
func (s *Session) SetCookies(cookies []*proto.NetworkCookieParam) error {
	page := s.AcquirePage()
	if page == nil {
		return types.ErrSessionPageNil
	}
	defer s.ReleasePage()

	return page.SetCookies(cookies)
}

// LockOperation acquires the operation mutex to prevent concurrent operations
// on the same session. This should be called before any operation.
// The caller MUST call UnlockOperation when done.
func (s *Session) LockOperation() {
	s.opMu.Lock()
}

// UnlockOperation releases the operation mutex after an operation completes.
func (s *Session) UnlockOperation() {
	s.opMu.Unlock()
}
