// Package main provides the entry point for Helmsman.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Import for side effects - registers pprof handlers
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/corvidlabs/helmsman/internal/browser"
	"github.com/corvidlabs/helmsman/internal/config"
	"github.com/corvidlabs/helmsman/internal/executor"
	"github.com/corvidlabs/helmsman/internal/handlers"
	"github.com/corvidlabs/helmsman/internal/middleware"
	"github.com/corvidlabs/helmsman/internal/pacer"
	"github.com/corvidlabs/helmsman/internal/resourcemon"
	"github.com/corvidlabs/helmsman/internal/selectors"
	"github.com/corvidlabs/helmsman/internal/session"
	"github.com/corvidlabs/helmsman/internal/sitememory"
	"github.com/corvidlabs/helmsman/internal/stats"
	"github.com/corvidlabs/helmsman/pkg/version"
)

func main() {
	// Handle --version flag early, before any initialization
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Helmsman %s\n", version.Full())
		return
	}

	// Load configuration
	cfg := config.Load()

	// Setup logging first so validation warnings are visible
	setupLogging(cfg.LogLevel)

	// Validate configuration
	cfg.Validate()

	// Print banner
	printBanner()

	// Initialize browser pool
	log.Info().Msg("Initializing browser pool...")
	pool, err := browser.NewPool(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize browser pool")
	}

	// Initialize session manager with pool reference for browser cleanup
	sessionMgr := session.NewManager(cfg, pool)

	// Initialize the adaptive pacer, keyed off per-domain request history
	var domainStats *stats.Manager
	var rateLimiter *pacer.Pacer
	if cfg.AdaptiveRateLimitingEnabled {
		domainStats = stats.NewManager()
		rateLimiter = pacer.New(pacer.Config{
			BaseDelay:        cfg.AdaptiveRateBaseDelay,
			MinDelay:         cfg.AdaptiveRateMinDelay,
			MaxDelay:         cfg.AdaptiveRateMaxDelay,
			SuccessIncrement: cfg.AdaptiveRateSuccessIncrement,
			FailureDecrement: cfg.AdaptiveRateFailureDecrement,
		}, domainStats)
		log.Info().Msg("Adaptive per-domain pacing enabled")
	}

	// Open the site-memory store, which remembers per-domain extraction
	// hints (selectors, content kind) across sessions
	var siteMemory *sitememory.Store
	if cfg.SiteMemoryEnabled {
		siteMemory, err = sitememory.Open(cfg.SiteMemoryPath, cfg.SiteMemoryTTL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open site memory store, continuing without it")
			siteMemory = nil
		} else {
			log.Info().Str("path", cfg.SiteMemoryPath).Msg("Site memory store opened")
		}
	}

	// Start the resource monitor, which tracks per-session CPU/memory and
	// recommends sessions to reclaim when idle
	resourceMon := resourcemon.New(cfg.ResourceMonitorInterval, cfg.ResourceMonitorIdleSessionSecs, func() int {
		return cfg.MaxSessions
	})
	resourceMon.RegisterCollectors(prometheus.DefaultRegisterer)
	resourceMon.Start()

	// Load the CAPTCHA/bot-challenge selector registry
	selectorsMgr, err := selectors.NewManager(cfg.SelectorsPath, cfg.SelectorsHotReload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize selectors manager, using embedded defaults")
		selectorsMgr = selectors.GetManager()
	}

	// Wire the operation executor from its collaborators
	exec := executor.New(rateLimiter, siteMemory, resourceMon, selectorsMgr, cfg.MaxURLLength)

	// Create handler
	handler := handlers.New(pool, sessionMgr, exec, cfg, resourceMon)

	// Build middleware chain
	var finalHandler http.Handler = handler

	// Apply middleware (in reverse order - last applied runs first)
	// 1. Recovery (outermost - catches panics from everything)
	// 2. Logging (logs all requests)
	// 3. Rate limiting (if enabled)
	// 4. API key authentication (if enabled)
	// 5. Security headers
	// 6. CORS (handles preflight)

	finalHandler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})(finalHandler)

	finalHandler = middleware.SecurityHeaders(finalHandler)

	// Apply API key authentication middleware if enabled
	// The rate limiter below wraps this handler, so it runs first and every
	// request, authenticated or not, consumes a rate limit token
	if cfg.APIKeyEnabled {
		log.Info().Msg("API key authentication enabled")
		finalHandler = middleware.APIKey(cfg)(finalHandler)
	}

	// Create request rate limiter middleware with cleanup support
	var reqRateLimiter *middleware.RateLimiterMiddleware
	if cfg.RateLimitEnabled {
		log.Info().
			Int("requests_per_minute", cfg.RateLimitRPM).
			Bool("trust_proxy", cfg.TrustProxy).
			Msg("Request rate limiting enabled")
		reqRateLimiter = middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.TrustProxy)
		finalHandler = reqRateLimiter.Handler()(finalHandler)
	}

	finalHandler = middleware.Logging(finalHandler)
	finalHandler = middleware.Recovery(finalHandler)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           finalHandler,
		ReadTimeout:       cfg.MaxTimeout + 10*time.Second,
		WriteTimeout:      cfg.MaxTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second, // Prevent slowloris attacks
	}

	// Start pprof server if enabled
	// WARNING: pprof should only be enabled in development/debugging
	// as it exposes detailed runtime information
	var pprofServer *http.Server
	if cfg.PProfEnabled {
		pprofAddr := fmt.Sprintf("%s:%d", cfg.PProfBindAddr, cfg.PProfPort)
		pprofServer = &http.Server{
			Addr:         pprofAddr,
			Handler:      http.DefaultServeMux, // pprof registers to DefaultServeMux
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second, // Profiles can take time
		}

		go func() {
			log.Warn().
				Str("addr", pprofAddr).
				Msg("WARNING: pprof profiling server started - exposes runtime internals, use for debugging only")

			if err := pprofServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	// Start main server in goroutine
	go func() {
		log.Info().
			Str("address", addr).
			Int("pool_size", cfg.BrowserPoolSize).
			Bool("rate_limit_enabled", cfg.RateLimitEnabled).
			Bool("adaptive_pacing_enabled", cfg.AdaptiveRateLimitingEnabled).
			Bool("site_memory_enabled", cfg.SiteMemoryEnabled).
			Msg("Helmsman is ready to accept requests")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Stop receiving signals to prevent double-shutdown
	signal.Stop(quit)

	log.Info().Msg("Shutting down...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown main server
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	// Shutdown pprof server if running
	if pprofServer != nil {
		if err := pprofServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("pprof server shutdown error")
		}
	}

	// Close request rate limiter to stop cleanup goroutine
	if reqRateLimiter != nil {
		reqRateLimiter.Close()
	}

	// Stop the resource monitor
	resourceMon.Stop()

	// Close the selectors manager (stops its hot-reload watcher, if any)
	if err := selectorsMgr.Close(); err != nil {
		log.Error().Err(err).Msg("Selectors manager close error")
	}

	// Close the site memory store
	if siteMemory != nil {
		if err := siteMemory.Close(); err != nil {
			log.Error().Err(err).Msg("Site memory store close error")
		}
	}

	// Close session manager
	if err := sessionMgr.Close(); err != nil {
		log.Error().Err(err).Msg("Session manager close error")
	}

	// Close browser pool
	if err := pool.Close(); err != nil {
		log.Error().Err(err).Msg("Browser pool close error")
	}

	log.Info().Msg("Shutdown complete")
}

// setupLogging configures zerolog based on the log level.
func setupLogging(level string) {
	// Use console writer for prettier output
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// printBanner prints the startup banner.
func printBanner() {
	banner := `
 _   _      _
| | | | ___| |_ __ ___  ___ _ __ ___   __ _ _ __
| |_| |/ _ \ | '_ ' _ \/ __| '_ ' _ \ / _' | '_ \
|  _  |  __/ | | | | | \__ \ | | | | | (_| | | | |
|_| |_|\___|_|_| |_| |_|___/_| |_| |_|\__,_|_| |_|
                                    Browser Automation Service
`
	fmt.Println(banner)
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting Helmsman")
}
