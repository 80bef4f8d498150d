// Package coordinator implements the render coordination state machine: the
// component that decides on every edit whether the expensive external render
// is actually necessary, serializes render attempts process-wide, caches
// outcomes by content fingerprint and keeps the artifact set bounded.
//
// The machine has three states. Idle means no render is in flight. Rendering
// means exactly one attempt is executing. RenderingPending means an attempt
// is executing and newer content arrived meanwhile; when the attempt
// completes, one follow-up render runs with the latest pending content and
// every intermediate content version is discarded unrendered.
package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cvforge/internal/artifacts"
	"cvforge/internal/errors"
	"cvforge/internal/fingerprint"
	"cvforge/internal/logging"
	"cvforge/internal/rendercache"
	"cvforge/internal/renderer"
	"cvforge/internal/types"
)

// State is the coordinator's position in the render state machine.
type State int

const (
	StateIdle State = iota
	StateRendering
	StateRenderingPending
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRendering:
		return "rendering"
	case StateRenderingPending:
		return "rendering-pending"
	default:
		return "unknown"
	}
}

// DefaultTimeout bounds one render attempt. Kept in single-digit seconds so
// a stalled render engine cannot hold the serialization lock past a user's
// patience.
const DefaultTimeout = 10 * time.Second

// sourceFileName is the name the working document is saved under inside each
// artifact directory before the render engine runs.
const sourceFileName = "cv.yaml"

type request struct {
	fingerprint string
	content     []byte
}

// Coordinator owns the render lock, the outcome cache and the artifact
// store. One instance is shared by all editing sessions; render execution is
// globally serialized because the render engine uses shared working storage.
type Coordinator struct {
	cache    *rendercache.Cache
	store    *artifacts.Store
	renderer renderer.Renderer
	timeout  time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	state   State
	lastFP  string
	pending *request
	waiters []chan *types.Outcome
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout overrides the per-attempt render timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New constructs a coordinator with injected dependencies.
func New(cache *rendercache.Cache, store *artifacts.Store, r renderer.Renderer, logger logging.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	c := &Coordinator{
		cache:    cache,
		store:    store,
		renderer: r,
		timeout:  DefaultTimeout,
		logger:   logger.WithComponent("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current machine state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastOutcome returns the cached outcome for the most recently rendered
// fingerprint, if any.
func (c *Coordinator) LastOutcome() (*types.Outcome, bool) {
	c.mu.Lock()
	fp := c.lastFP
	c.mu.Unlock()
	if fp == "" {
		return nil, false
	}
	return c.cache.Lookup(fp)
}

// CacheStats exposes the outcome cache counters for the status surface.
func (c *Coordinator) CacheStats() rendercache.Stats {
	return c.cache.GetStats()
}

// Submit requests a render of content. Identical unchanged content with a
// cached outcome returns that outcome without touching the render engine. If
// a render is already in flight the content is recorded as the pending
// retrigger (latest wins) and Submit blocks until the final render of the
// burst completes. ctx cancellation abandons the wait only; an in-flight
// render is never interrupted by a newer edit.
func (c *Coordinator) Submit(ctx context.Context, content []byte) (*types.Outcome, error) {
	return c.submit(ctx, content, false)
}

// Retry forces a fresh render attempt for content even when an outcome is
// already cached for its fingerprint. This is the explicit escape hatch for
// a stale cached failure caused by a transient engine problem.
func (c *Coordinator) Retry(ctx context.Context, content []byte) (*types.Outcome, error) {
	return c.submit(ctx, content, true)
}

func (c *Coordinator) submit(ctx context.Context, content []byte, force bool) (*types.Outcome, error) {
	fp, err := fingerprint.Sum(content)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state == StateIdle {
		if !force {
			if outcome, ok := c.cache.Lookup(fp); ok {
				// Fast path: nothing changed, no external call.
				c.lastFP = fp
				c.mu.Unlock()
				c.logger.Debug(ctx, "cache hit, render skipped", "fingerprint", fp)
				return outcome, nil
			}
		}
		c.state = StateRendering
		ch := c.addWaiterLocked()
		c.mu.Unlock()
		go c.runRender(&request{fingerprint: fp, content: content})
		return c.await(ctx, ch)
	}

	// A render is in flight: coalesce. Only the latest content will ever be
	// rendered as the follow-up attempt.
	c.pending = &request{fingerprint: fp, content: content}
	c.state = StateRenderingPending
	ch := c.addWaiterLocked()
	c.mu.Unlock()
	c.logger.Debug(ctx, "render in flight, recorded pending retrigger", "fingerprint", fp)
	return c.await(ctx, ch)
}

func (c *Coordinator) addWaiterLocked() chan *types.Outcome {
	ch := make(chan *types.Outcome, 1)
	c.waiters = append(c.waiters, ch)
	return ch
}

func (c *Coordinator) await(ctx context.Context, ch chan *types.Outcome) (*types.Outcome, error) {
	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runRender executes one attempt and drives the completion transition:
// cache store, then prune, then waiter release, in that order, so a waiting
// retrigger can never observe the cache before it is populated.
func (c *Coordinator) runRender(req *request) {
	ctx := context.Background()
	outcome := c.renderOnce(ctx, req)

	c.mu.Lock()
	c.cache.Store(req.fingerprint, outcome)
	c.lastFP = req.fingerprint

	if _, err := c.store.Prune(ctx); err != nil {
		// Best effort: a failed prune never fails the render outcome.
		c.logger.Warn(ctx, err, "artifact prune failed")
	}

	if c.pending != nil {
		next := c.pending
		c.pending = nil
		c.state = StateRendering
		c.mu.Unlock()
		c.logger.Debug(ctx, "starting coalesced follow-up render", "fingerprint", next.fingerprint)
		go c.runRender(next)
		return
	}

	waiters := c.waiters
	c.waiters = nil
	c.state = StateIdle
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- outcome
	}
}

// renderOnce performs a single attempt. It never panics and never returns
// nil: every failure mode collapses into a Failure outcome so the state
// machine always proceeds to Idle or to the pending retrigger.
func (c *Coordinator) renderOnce(ctx context.Context, req *request) *types.Outcome {
	start := time.Now()

	dir, err := c.store.Allocate()
	if err != nil {
		c.logger.Error(ctx, err, "artifact allocation failed", "fingerprint", req.fingerprint)
		return c.failure(req.fingerprint, err, start)
	}

	sourcePath := filepath.Join(dir.Path, sourceFileName)
	if err := os.WriteFile(sourcePath, req.content, 0o600); err != nil {
		werr := errors.NewArtifactIOError("writing render source", err)
		c.logger.Error(ctx, werr, "could not stage render source", "dir", dir.ID)
		return c.failure(req.fingerprint, werr, start)
	}

	renderCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.renderer.Render(renderCtx, sourcePath, dir.Path)
	if err != nil {
		c.logger.Warn(ctx, err, "render attempt failed",
			"fingerprint", req.fingerprint,
			"dir", dir.ID,
			"duration", time.Since(start).String(),
		)
		return c.failure(req.fingerprint, err, start)
	}

	files, err := c.store.Finalize(dir, nil)
	if err != nil {
		c.logger.Warn(ctx, err, "artifact finalize failed, using renderer listing", "dir", dir.ID)
		files = result.OutputFiles
	}

	outcome := &types.Outcome{
		Fingerprint: req.fingerprint,
		Success:     true,
		Artifact: &types.ArtifactRef{
			ID:    dir.ID,
			Dir:   dir.Path,
			PDF:   result.PDF,
			Files: files,
		},
		RenderedAt: start,
		Duration:   time.Since(start),
	}
	c.logger.Info(ctx, "render complete",
		"fingerprint", req.fingerprint,
		"dir", dir.ID,
		"duration", outcome.Duration.String(),
	)
	return outcome
}

func (c *Coordinator) failure(fp string, err error, start time.Time) *types.Outcome {
	return &types.Outcome{
		Fingerprint: fp,
		Success:     false,
		Category:    errors.CategoryOf(err).String(),
		Reason:      err.Error(),
		RenderedAt:  start,
		Duration:    time.Since(start),
	}
}
