// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxBrowserPoolSize = 20
	maxMaxSessions     = 10000
	maxMaxMemoryMB     = 16384
	maxTimeout         = 10 * time.Minute
	maxRateLimitRPM    = 10000 // Maximum requests per minute per IP
	minAPIKeyLength    = 16    // Minimum API key length for security
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Browser settings
	Headless    bool
	BrowserPath string

	// Pool settings - CRITICAL for memory efficiency
	BrowserPoolSize    int
	BrowserPoolTimeout time.Duration
	MaxMemoryMB        int

	// Session settings
	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration
	MaxSessions            int
	MaxURLLength           int

	// Timeouts
	DefaultTimeout    time.Duration
	MaxTimeout        time.Duration
	MaxPageLoadTimeout time.Duration

	// Proxy defaults
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string

	// Logging
	LogLevel string
	LogHTML  bool

	// Profiling
	PProfEnabled  bool
	PProfPort     int
	PProfBindAddr string // Bind address for pprof server (default: localhost only)

	// Prometheus metrics endpoint (Resource Monitor's scrape surface)
	PrometheusEnabled bool
	PrometheusPort    int

	// Security
	RateLimitEnabled   bool
	RateLimitRPM       int      // Requests per minute per IP
	TrustProxy         bool     // Trust X-Forwarded-For headers (only enable behind a reverse proxy)
	IgnoreCertErrors   bool     // Ignore TLS certificate errors (required for some proxies)
	CORSAllowedOrigins []string // Allowed CORS origins (empty = reject all cross-origin requests, with a startup warning)
	AllowLocalProxies  bool     // Allow localhost/private IP proxies (default: false)

	// API Key Authentication
	APIKeyEnabled bool   // Enable API key authentication
	APIKey        string // Required API key for requests (only used if APIKeyEnabled is true)

	// Caching
	CacheEnabled bool
	CacheTTL     time.Duration

	// Adaptive rate limiting (global pacer)
	AdaptiveRateLimitingEnabled bool
	AdaptiveRateBaseDelay       time.Duration
	AdaptiveRateMinDelay        time.Duration
	AdaptiveRateMaxDelay        time.Duration
	AdaptiveRateSuccessIncrement float64
	AdaptiveRateFailureDecrement float64

	// Site memory
	SiteMemoryEnabled bool
	SiteMemoryTTL     time.Duration
	SiteMemoryPath    string

	// Semantic chunking
	SemanticChunkingEnabled             bool
	SemanticChunkingConfidenceThreshold float64

	// Content deduplication
	ContentDeduplicationEnabled bool
	ContentDeduplicationTTL     time.Duration

	// Human-like mouse movement
	EnhancedMouseMovementEnabled bool
	MouseBezierPoints            int
	MouseMinDelay                time.Duration
	MouseMaxDelay                time.Duration
	MouseReactionDelayMin         time.Duration
	MouseReactionDelayMax         time.Duration

	// Resource monitor
	ResourceMonitorInterval        time.Duration
	ResourceMonitorIdleSessionSecs time.Duration

	// Selectors settings
	SelectorsPath      string // Path to external selectors.yaml override file
	SelectorsHotReload bool   // Enable file watching for hot-reload of selectors
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		// Server - bind to all interfaces by default; the orchestration engine
		// is expected to sit behind a reverse proxy or run in an isolated
		// network namespace. Validate() warns loudly when this is the case.
		Host: getEnvString("HOST", "0.0.0.0"),
		Port: getEnvInt("PORT", 8191),

		// Browser
		Headless:    getEnvBool("HEADLESS", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),

		// Pool - These defaults are tuned for memory efficiency
		BrowserPoolSize:    getEnvInt("BROWSER_POOL_SIZE", 3),
		BrowserPoolTimeout: getEnvDuration("BROWSER_POOL_TIMEOUT", 30*time.Second),
		MaxMemoryMB:        getEnvInt("MAX_MEMORY_MB", 2048),

		// Sessions
		SessionTTL:             getEnvDuration("SESSION_TTL", 5*time.Minute),
		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", 1*time.Minute),
		MaxSessions:            getEnvInt("MAX_SESSIONS", 20),
		MaxURLLength:           getEnvInt("MAX_URL_LENGTH", 2048),

		// Timeouts
		DefaultTimeout:     getEnvDuration("DEFAULT_TIMEOUT", 30*time.Second),
		MaxTimeout:         getEnvDuration("MAX_TIMEOUT", 300*time.Second),
		MaxPageLoadTimeout: getEnvDuration("MAX_PAGE_LOAD_TIMEOUT", 60*time.Second),

		// Proxy
		ProxyURL:      getEnvString("PROXY_URL", ""),
		ProxyUsername: getEnvString("PROXY_USERNAME", ""),
		ProxyPassword: getEnvString("PROXY_PASSWORD", ""),

		// Logging
		LogLevel: getEnvString("LOG_LEVEL", "info"),
		LogHTML:  getEnvBool("LOG_HTML", false),

		// Profiling - disabled by default for security
		PProfEnabled:  getEnvBool("PPROF_ENABLED", false),
		PProfPort:     getEnvInt("PPROF_PORT", 6060),
		PProfBindAddr: getEnvString("PPROF_BIND_ADDR", "127.0.0.1"), // Localhost only by default

		// Prometheus
		PrometheusEnabled: getEnvBool("PROMETHEUS_ENABLED", false),
		PrometheusPort:    getEnvInt("PROMETHEUS_PORT", 8192),

		// Security
		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", 60), // 60 requests per minute per IP
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
		IgnoreCertErrors:   getEnvBool("IGNORE_CERT_ERRORS", false),
		CORSAllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),
		AllowLocalProxies:  getEnvBool("ALLOW_LOCAL_PROXIES", false), // Default false for security

		// API Key Authentication
		APIKeyEnabled: getEnvBool("API_KEY_ENABLED", false),
		APIKey:        getEnvString("API_KEY", ""),

		// Caching
		CacheEnabled: getEnvBool("ENABLE_CACHE", true),
		CacheTTL:     getEnvDuration("CACHE_TTL", 300*time.Second),

		// Adaptive rate limiting
		AdaptiveRateLimitingEnabled:  getEnvBool("ENABLE_ADAPTIVE_RATE_LIMITING", true),
		AdaptiveRateBaseDelay:        getEnvDuration("ADAPTIVE_RATE_BASE_DELAY", 1*time.Second),
		AdaptiveRateMinDelay:         getEnvDuration("ADAPTIVE_RATE_MIN_DELAY", 200*time.Millisecond),
		AdaptiveRateMaxDelay:         getEnvDuration("ADAPTIVE_RATE_MAX_DELAY", 30*time.Second),
		AdaptiveRateSuccessIncrement: getEnvFloat("ADAPTIVE_RATE_SUCCESS_INCREMENT", 0.1),
		AdaptiveRateFailureDecrement: getEnvFloat("ADAPTIVE_RATE_FAILURE_DECREMENT", 0.3),

		// Site memory
		SiteMemoryEnabled: getEnvBool("ENABLE_SITE_MEMORY", true),
		SiteMemoryTTL:     getEnvDuration("SITE_MEMORY_TTL", 24*time.Hour),
		SiteMemoryPath:    getEnvString("SITE_MEMORY_PATH", "site_memory.db"),

		// Semantic chunking
		SemanticChunkingEnabled:             getEnvBool("ENABLE_SEMANTIC_CHUNKING", true),
		SemanticChunkingConfidenceThreshold: getEnvFloat("SEMANTIC_CHUNKING_CONFIDENCE_THRESHOLD", 0.7),

		// Content deduplication
		ContentDeduplicationEnabled: getEnvBool("ENABLE_CONTENT_DEDUPLICATION", true),
		ContentDeduplicationTTL:     getEnvDuration("CONTENT_DEDUPLICATION_TTL", 1*time.Hour),

		// Human-like mouse movement
		EnhancedMouseMovementEnabled: getEnvBool("ENABLE_ENHANCED_MOUSE_MOVEMENT", true),
		MouseBezierPoints:            getEnvInt("MOUSE_MOVEMENT_BEZIER_POINTS", 25),
		MouseMinDelay:                getEnvDuration("MOUSE_MOVEMENT_MIN_DELAY", 10*time.Millisecond),
		MouseMaxDelay:                getEnvDuration("MOUSE_MOVEMENT_MAX_DELAY", 30*time.Millisecond),
		MouseReactionDelayMin:        getEnvDuration("MOUSE_MOVEMENT_REACTION_DELAY_MIN", 100*time.Millisecond),
		MouseReactionDelayMax:        getEnvDuration("MOUSE_MOVEMENT_REACTION_DELAY_MAX", 400*time.Millisecond),

		// Resource monitor
		ResourceMonitorInterval:        getEnvDuration("RESOURCE_MONITOR_INTERVAL", 30*time.Second),
		ResourceMonitorIdleSessionSecs: getEnvDuration("RESOURCE_MONITOR_IDLE_THRESHOLD", 300*time.Second),

		// Selectors settings
		SelectorsPath:      getEnvString("SELECTORS_PATH", ""),
		SelectorsHotReload: getEnvBool("SELECTORS_HOT_RELOAD", false),
	}
}

// HasDefaultProxy returns true if a default proxy is configured.
func (c *Config) HasDefaultProxy() bool {
	return c.ProxyURL != ""
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	// Port validation - allow 0 for system-assigned ports
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8191")
		c.Port = 8191
	}

	// BrowserPath validation - prevent path traversal attacks
	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().
				Str("path", c.BrowserPath).
				Msg("BrowserPath contains path traversal sequence (..), ignoring")
			c.BrowserPath = ""
		} else if !strings.HasPrefix(c.BrowserPath, "/") && !strings.HasPrefix(c.BrowserPath, "C:") && !strings.HasPrefix(c.BrowserPath, "c:") {
			log.Warn().
				Str("path", c.BrowserPath).
				Msg("BrowserPath should be an absolute path")
		}
	}

	// Pool size validation with upper bound
	if c.BrowserPoolSize < 1 {
		log.Warn().Int("size", c.BrowserPoolSize).Msg("Invalid pool size, using default 3")
		c.BrowserPoolSize = 3
	} else if c.BrowserPoolSize > maxBrowserPoolSize {
		log.Warn().
			Int("size", c.BrowserPoolSize).
			Int("max", maxBrowserPoolSize).
			Msg("Pool size too large, capping to maximum")
		c.BrowserPoolSize = maxBrowserPoolSize
	}

	// Memory validation with upper bound
	if c.MaxMemoryMB < 256 {
		log.Warn().Int("mb", c.MaxMemoryMB).Msg("Memory limit too low, using default 2048")
		c.MaxMemoryMB = 2048
	} else if c.MaxMemoryMB > maxMaxMemoryMB {
		log.Warn().
			Int("mb", c.MaxMemoryMB).
			Int("max", maxMaxMemoryMB).
			Msg("Memory limit too high, capping to maximum")
		c.MaxMemoryMB = maxMaxMemoryMB
	}

	// Timeout validation with upper bound
	if c.MaxTimeout < time.Second {
		log.Warn().Dur("timeout", c.MaxTimeout).Msg("Max timeout too short, using 300s")
		c.MaxTimeout = 300 * time.Second
	}
	if c.MaxTimeout > maxTimeout {
		log.Warn().
			Dur("timeout", c.MaxTimeout).
			Dur("max", maxTimeout).
			Msg("Max timeout too high, capping to maximum")
		c.MaxTimeout = maxTimeout
	}
	if c.DefaultTimeout < time.Second {
		log.Warn().Dur("timeout", c.DefaultTimeout).Msg("Default timeout too short, using 30s")
		c.DefaultTimeout = 30 * time.Second
	}
	if c.DefaultTimeout > c.MaxTimeout {
		log.Warn().
			Dur("default", c.DefaultTimeout).
			Dur("max", c.MaxTimeout).
			Msg("Default timeout exceeds max timeout, adjusting to max")
		c.DefaultTimeout = c.MaxTimeout
	}
	if c.MaxPageLoadTimeout < time.Second {
		log.Warn().Dur("timeout", c.MaxPageLoadTimeout).Msg("Max page load timeout too short, using 60s")
		c.MaxPageLoadTimeout = 60 * time.Second
	}

	// Session validation with upper bound
	if c.MaxSessions < 1 {
		log.Warn().Int("max", c.MaxSessions).Msg("Invalid max sessions, using 20")
		c.MaxSessions = 20
	} else if c.MaxSessions > maxMaxSessions {
		log.Warn().
			Int("sessions", c.MaxSessions).
			Int("max", maxMaxSessions).
			Msg("Max sessions too high, capping to maximum")
		c.MaxSessions = maxMaxSessions
	}

	if c.MaxURLLength < 64 {
		log.Warn().Int("max_url_length", c.MaxURLLength).Msg("MAX_URL_LENGTH too low, using 2048")
		c.MaxURLLength = 2048
	}

	// SessionTTL validation (minimum 1 minute, maximum 24 hours)
	const minSessionTTL = 1 * time.Minute
	const maxSessionTTL = 24 * time.Hour
	if c.SessionTTL < minSessionTTL {
		log.Warn().
			Dur("ttl", c.SessionTTL).
			Dur("min", minSessionTTL).
			Msg("Session TTL too short, using minimum")
		c.SessionTTL = minSessionTTL
	} else if c.SessionTTL > maxSessionTTL {
		log.Warn().
			Dur("ttl", c.SessionTTL).
			Dur("max", maxSessionTTL).
			Msg("Session TTL too long, using maximum")
		c.SessionTTL = maxSessionTTL
	}

	// SessionCleanupInterval validation (minimum 10 seconds, maximum 1 hour)
	const minCleanupInterval = 10 * time.Second
	const maxCleanupInterval = 1 * time.Hour
	if c.SessionCleanupInterval < minCleanupInterval {
		log.Warn().
			Dur("interval", c.SessionCleanupInterval).
			Dur("min", minCleanupInterval).
			Msg("Session cleanup interval too short, using minimum")
		c.SessionCleanupInterval = minCleanupInterval
	} else if c.SessionCleanupInterval > maxCleanupInterval {
		log.Warn().
			Dur("interval", c.SessionCleanupInterval).
			Dur("max", maxCleanupInterval).
			Msg("Session cleanup interval too long, using maximum")
		c.SessionCleanupInterval = maxCleanupInterval
	}

	if c.SessionCleanupInterval >= c.SessionTTL {
		log.Warn().
			Dur("cleanup_interval", c.SessionCleanupInterval).
			Dur("ttl", c.SessionTTL).
			Msg("SESSION_CLEANUP_INTERVAL should be less than SESSION_TTL for timely cleanup")
	}

	// BrowserPoolTimeout validation (minimum 1 second, maximum 5 minutes)
	const minPoolTimeout = 1 * time.Second
	const maxPoolTimeout = 5 * time.Minute
	if c.BrowserPoolTimeout < minPoolTimeout {
		log.Warn().
			Dur("timeout", c.BrowserPoolTimeout).
			Dur("min", minPoolTimeout).
			Msg("Browser pool timeout too short, using minimum")
		c.BrowserPoolTimeout = minPoolTimeout
	} else if c.BrowserPoolTimeout > maxPoolTimeout {
		log.Warn().
			Dur("timeout", c.BrowserPoolTimeout).
			Dur("max", maxPoolTimeout).
			Msg("Browser pool timeout too long, using maximum")
		c.BrowserPoolTimeout = maxPoolTimeout
	}

	// Rate limit validation with upper bound
	if c.RateLimitEnabled {
		if c.RateLimitRPM < 1 {
			log.Warn().Int("rpm", c.RateLimitRPM).Msg("Invalid rate limit, using 60 RPM")
			c.RateLimitRPM = 60
		} else if c.RateLimitRPM > maxRateLimitRPM {
			log.Warn().
				Int("rpm", c.RateLimitRPM).
				Int("max", maxRateLimitRPM).
				Msg("Rate limit too high, capping to maximum")
			c.RateLimitRPM = maxRateLimitRPM
		}
	}

	// Log level validation
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	// PProf security warning
	if c.PProfEnabled && c.PProfBindAddr != "127.0.0.1" && c.PProfBindAddr != "localhost" {
		log.Warn().
			Str("addr", c.PProfBindAddr).
			Msg("WARNING: pprof exposed on non-localhost address - this is a security risk")
	}

	// Host binding warning
	if c.Host == "0.0.0.0" {
		log.Warn().Msg("HOST bound to 0.0.0.0 - ensure this process runs behind a firewall or reverse proxy")
	}

	// CORS security warning
	if len(c.CORSAllowedOrigins) == 0 {
		log.Warn().Msg("CORS_ALLOWED_ORIGINS not set - allowing all origins (potential CSRF risk)")
	}

	// Certificate validation warning
	if c.IgnoreCertErrors {
		if c.ProxyURL == "" {
			log.Warn().Msg("WARNING: IGNORE_CERT_ERRORS enabled without a proxy - this exposes you to MITM attacks")
		} else {
			log.Info().Msg("IGNORE_CERT_ERRORS enabled for proxy compatibility")
		}
	}

	// Proxy URL and credential validation
	if c.ProxyURL != "" {
		if !strings.Contains(c.ProxyURL, "://") {
			log.Error().
				Str("proxy_url", c.ProxyURL).
				Msg("ProxyURL missing scheme (should be http://, https://, socks4://, or socks5://)")
		} else {
			scheme := strings.ToLower(strings.Split(c.ProxyURL, "://")[0])
			validSchemes := map[string]bool{"http": true, "https": true, "socks4": true, "socks5": true}
			if !validSchemes[scheme] {
				log.Error().
					Str("proxy_url", c.ProxyURL).
					Str("scheme", scheme).
					Msg("ProxyURL has invalid scheme (must be http, https, socks4, or socks5)")
			}

			if strings.Contains(c.ProxyURL, "@") {
				log.Warn().Msg("ProxyURL contains embedded credentials (@) - use PROXY_USERNAME and PROXY_PASSWORD environment variables instead for better security")
			}
		}
	}

	if c.ProxyUsername != "" && c.ProxyPassword == "" {
		log.Warn().Msg("PROXY_USERNAME set but PROXY_PASSWORD is empty - authentication may fail")
	}
	if c.ProxyPassword != "" && c.ProxyUsername == "" {
		log.Warn().Msg("PROXY_PASSWORD set but PROXY_USERNAME is empty - authentication may fail")
	}
	if (c.ProxyUsername != "" || c.ProxyPassword != "") && c.ProxyURL == "" {
		log.Warn().Msg("Proxy credentials set but PROXY_URL is empty - credentials will not be used")
	}
	if (c.ProxyUsername != "" || c.ProxyPassword != "") && c.ProxyURL != "" {
		if strings.HasPrefix(strings.ToLower(c.ProxyURL), "http://") {
			log.Warn().Msg("WARNING: Proxy credentials over HTTP - credentials may be intercepted. Consider using HTTPS proxy")
		}
	}

	// Port conflict validation
	usedPorts := make(map[int]string)
	if c.Port > 0 {
		usedPorts[c.Port] = "PORT"
	}
	if c.PProfEnabled {
		if existingName, exists := usedPorts[c.PProfPort]; exists {
			log.Error().
				Int("port", c.PProfPort).
				Str("conflicts_with", existingName).
				Msg("PPROF_PORT conflicts with another port, adjusting")
			c.PProfPort = 6060
			for usedPorts[c.PProfPort] != "" {
				c.PProfPort++
				if c.PProfPort > 65535 {
					log.Warn().Msg("Could not find available pprof port, disabling")
					c.PProfEnabled = false
					break
				}
			}
		}
		usedPorts[c.PProfPort] = "PPROF_PORT"
	}
	if c.PrometheusEnabled {
		if existingName, exists := usedPorts[c.PrometheusPort]; exists {
			log.Error().
				Int("port", c.PrometheusPort).
				Str("conflicts_with", existingName).
				Msg("PROMETHEUS_PORT conflicts with another port, adjusting")
			c.PrometheusPort = 8192
			for usedPorts[c.PrometheusPort] != "" {
				c.PrometheusPort++
				if c.PrometheusPort > 65535 {
					log.Warn().Msg("Could not find available Prometheus port, disabling")
					c.PrometheusEnabled = false
					break
				}
			}
		}
	}

	c.validatePacerConfig()
	c.validateSiteMemoryConfig()
	c.validateContentConfig()
	c.validateMouseConfig()

	// Selectors path validation
	if c.SelectorsPath != "" {
		if strings.Contains(c.SelectorsPath, "..") {
			log.Error().
				Str("path", c.SelectorsPath).
				Msg("SelectorsPath contains path traversal sequence (..), ignoring")
			c.SelectorsPath = ""
		} else if !strings.HasPrefix(c.SelectorsPath, "/") && !strings.HasPrefix(c.SelectorsPath, "C:") && !strings.HasPrefix(c.SelectorsPath, "c:") {
			log.Warn().
				Str("path", c.SelectorsPath).
				Msg("SelectorsPath should be an absolute path")
		}
		if c.SelectorsHotReload && c.SelectorsPath != "" {
			if _, err := os.Stat(c.SelectorsPath); os.IsNotExist(err) {
				log.Warn().
					Str("path", c.SelectorsPath).
					Msg("SelectorsPath does not exist - hot-reload will watch for file creation")
			}
		}
	}

	if c.SelectorsHotReload && c.SelectorsPath == "" {
		log.Warn().Msg("SELECTORS_HOT_RELOAD enabled but SELECTORS_PATH not set - hot-reload disabled")
		c.SelectorsHotReload = false
	}

	// API key validation with minimum length enforcement
	if c.APIKeyEnabled {
		const maxAPIKeyLength = 256
		switch {
		case c.APIKey == "":
			log.Error().Msg("API_KEY_ENABLED is true but API_KEY is empty - authentication will always fail")
		case len(c.APIKey) < minAPIKeyLength:
			log.Error().
				Int("length", len(c.APIKey)).
				Int("min_required", minAPIKeyLength).
				Msg("API_KEY is too short for secure authentication - consider using a longer key")
		default:
			if len(c.APIKey) > maxAPIKeyLength {
				log.Error().
					Int("length", len(c.APIKey)).
					Int("max", maxAPIKeyLength).
					Msg("API_KEY is too long")
			}
			for i, r := range c.APIKey {
				if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
					(r >= '0' && r <= '9') || r == '-' || r == '_') {
					log.Warn().
						Int("position", i).
						Msg("API_KEY contains non-alphanumeric characters (only a-z, A-Z, 0-9, -, _ are recommended)")
					break
				}
			}
		}
	}
}

// validatePacerConfig validates the global/per-domain adaptive rate limiter bounds.
func (c *Config) validatePacerConfig() {
	if c.AdaptiveRateMinDelay < 0 {
		log.Warn().Msg("ADAPTIVE_RATE_MIN_DELAY negative, using 200ms")
		c.AdaptiveRateMinDelay = 200 * time.Millisecond
	}
	if c.AdaptiveRateMaxDelay < c.AdaptiveRateMinDelay {
		log.Warn().
			Dur("max", c.AdaptiveRateMaxDelay).
			Dur("min", c.AdaptiveRateMinDelay).
			Msg("ADAPTIVE_RATE_MAX_DELAY below minimum, using 30s")
		c.AdaptiveRateMaxDelay = 30 * time.Second
	}
	if c.AdaptiveRateBaseDelay < c.AdaptiveRateMinDelay || c.AdaptiveRateBaseDelay > c.AdaptiveRateMaxDelay {
		log.Warn().Msg("ADAPTIVE_RATE_BASE_DELAY out of [min,max] range, clamping")
		if c.AdaptiveRateBaseDelay < c.AdaptiveRateMinDelay {
			c.AdaptiveRateBaseDelay = c.AdaptiveRateMinDelay
		} else {
			c.AdaptiveRateBaseDelay = c.AdaptiveRateMaxDelay
		}
	}
	if c.AdaptiveRateSuccessIncrement <= 0 || c.AdaptiveRateSuccessIncrement > 1 {
		log.Warn().Float64("value", c.AdaptiveRateSuccessIncrement).Msg("ADAPTIVE_RATE_SUCCESS_INCREMENT out of (0,1], using 0.1")
		c.AdaptiveRateSuccessIncrement = 0.1
	}
	if c.AdaptiveRateFailureDecrement <= 0 || c.AdaptiveRateFailureDecrement > 1 {
		log.Warn().Float64("value", c.AdaptiveRateFailureDecrement).Msg("ADAPTIVE_RATE_FAILURE_DECREMENT out of (0,1], using 0.3")
		c.AdaptiveRateFailureDecrement = 0.3
	}
}

// validateSiteMemoryConfig validates site memory store bounds.
func (c *Config) validateSiteMemoryConfig() {
	const minTTL = 1 * time.Minute
	if c.SiteMemoryTTL < minTTL {
		log.Warn().Dur("ttl", c.SiteMemoryTTL).Msg("SITE_MEMORY_TTL too short, using 24h")
		c.SiteMemoryTTL = 24 * time.Hour
	}
	if c.SiteMemoryEnabled && c.SiteMemoryPath == "" {
		log.Warn().Msg("ENABLE_SITE_MEMORY is true but SITE_MEMORY_PATH is empty, using 'site_memory.db'")
		c.SiteMemoryPath = "site_memory.db"
	}
}

// validateContentConfig validates the content processor's tunables.
func (c *Config) validateContentConfig() {
	if c.SemanticChunkingConfidenceThreshold < 0 || c.SemanticChunkingConfidenceThreshold > 1 {
		log.Warn().
			Float64("threshold", c.SemanticChunkingConfidenceThreshold).
			Msg("SEMANTIC_CHUNKING_CONFIDENCE_THRESHOLD out of [0,1], using 0.7")
		c.SemanticChunkingConfidenceThreshold = 0.7
	}
	const minDedupTTL = 1 * time.Second
	if c.ContentDeduplicationTTL < minDedupTTL {
		log.Warn().Dur("ttl", c.ContentDeduplicationTTL).Msg("CONTENT_DEDUPLICATION_TTL too short, using 1h")
		c.ContentDeduplicationTTL = 1 * time.Hour
	}
}

// validateMouseConfig validates the human-mouse simulation's tunables.
func (c *Config) validateMouseConfig() {
	if c.MouseBezierPoints < 2 {
		log.Warn().Int("points", c.MouseBezierPoints).Msg("MOUSE_MOVEMENT_BEZIER_POINTS too low, using 25")
		c.MouseBezierPoints = 25
	} else if c.MouseBezierPoints > 200 {
		log.Warn().Int("points", c.MouseBezierPoints).Msg("MOUSE_MOVEMENT_BEZIER_POINTS too high, capping at 200")
		c.MouseBezierPoints = 200
	}
	if c.MouseMaxDelay < c.MouseMinDelay {
		log.Warn().Msg("MOUSE_MOVEMENT_MAX_DELAY below MOUSE_MOVEMENT_MIN_DELAY, swapping")
		c.MouseMinDelay, c.MouseMaxDelay = c.MouseMaxDelay, c.MouseMinDelay
	}
	if c.MouseReactionDelayMax < c.MouseReactionDelayMin {
		log.Warn().Msg("MOUSE_MOVEMENT_REACTION_DELAY_MAX below MOUSE_MOVEMENT_REACTION_DELAY_MIN, swapping")
		c.MouseReactionDelayMin, c.MouseReactionDelayMax = c.MouseReactionDelayMax, c.MouseReactionDelayMin
	}
}

// HasCache returns true if result caching is enabled.
func (c *Config) HasCache() bool {
	return c.CacheEnabled
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			if intValue < -2147483648 || intValue > 2147483647 {
				log.Warn().
					Str("key", key).
					Str("value", value).
					Int("default", defaultValue).
					Msg("Integer value out of range in environment variable, using default")
				return defaultValue
			}
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return floatValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Float64("default", defaultValue).
			Msg("Invalid float in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
