// Package executor drives the operations a session exposes against its
// underlying browser context: Navigate, Extract, Interact, Screenshot,
// Batch, and a directly-callable DetectCaptcha. Every operation checks the
// session's quota before touching the page, records its outcome back into
// the session's counters, and reports browser failures as a
// BrowserOperationError. Navigate retries transient failures with backoff
// first; the other operations fail on the first error.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/corvidlabs/helmsman/internal/pacer"
	"github.com/corvidlabs/helmsman/internal/resourcemon"
	"github.com/corvidlabs/helmsman/internal/security"
	"github.com/corvidlabs/helmsman/internal/selectors"
	"github.com/corvidlabs/helmsman/internal/session"
	"github.com/corvidlabs/helmsman/internal/sitememory"
	"github.com/corvidlabs/helmsman/internal/types"
)

// defaultTimeout is used when a request omits Timeout.
const defaultTimeout = 30 * time.Second

// minTimeout/maxTimeout bound every operation's effective timeout per the
// external-interfaces contract (1s - 300s).
const (
	minTimeout = 1 * time.Second
	maxTimeout = 300 * time.Second
)

// Executor wires the browser-driving operations to their supporting
// collaborators. A single Executor is shared across all sessions; every
// method takes the *session.Session to operate on as its first argument.
type Executor struct {
	Pacer       *pacer.Pacer
	SiteMemory  *sitememory.Store
	ResourceMon *resourcemon.Monitor
	Selectors   *selectors.Manager
	// MaxURLLength bounds Navigate's URL length check. Defaults to
	// security.DefaultMaxURLLength when New is given a non-positive value.
	MaxURLLength int
}

// New creates an Executor. Any collaborator may be nil; operations degrade
// gracefully (skip pacing, skip site-memory reads/writes, skip resource
// recording, fall back to built-in detection patterns) rather than failing,
// matching the propagation policy that pacer and site-memory never fail an
// operation visibly. maxURLLength <= 0 falls back to
// security.DefaultMaxURLLength.
func New(p *pacer.Pacer, sm *sitememory.Store, rm *resourcemon.Monitor, sel *selectors.Manager, maxURLLength int) *Executor {
	if maxURLLength <= 0 {
		maxURLLength = security.DefaultMaxURLLength
	}
	return &Executor{Pacer: p, SiteMemory: sm, ResourceMon: rm, Selectors: sel, MaxURLLength: maxURLLength}
}

// validateTimeout defaults an omitted (<=0) request timeout to
// defaultTimeout, and rejects one that falls outside [minTimeout,
// maxTimeout] with a ValidationError rather than silently clamping it to
// the boundary.
func validateTimeout(requested time.Duration) (time.Duration, error) {
	if requested <= 0 {
		return defaultTimeout, nil
	}
	if requested < minTimeout || requested > maxTimeout {
		return 0, types.NewValidationError("timeout",
			fmt.Sprintf("must be between %s and %s", minTimeout, maxTimeout))
	}
	return requested, nil
}

// recordOutcome folds an operation's result into the resource monitor, when
// one is configured. Never fails the calling operation.
func (e *Executor) recordOutcome(sess *session.Session, success bool, elapsed time.Duration) {
	if e.ResourceMon == nil {
		return
	}
	e.ResourceMon.RecordSession(sess.ID, 0, 0, success, elapsed)
}

// pace waits out the adaptive pacer's delay for domain before an operation
// touches the network, when a pacer is configured.
func (e *Executor) pace(ctx context.Context, domain string, lastSucceeded bool) {
	if e.Pacer == nil || domain == "" {
		return
	}
	if err := e.Pacer.WaitForDomain(ctx, domain, lastSucceeded); err != nil {
		log.Debug().Err(err).Str("domain", domain).Msg("pacer wait interrupted")
	}
}
