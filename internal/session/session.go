// Package session implements per-editing-session debounce logic: rapid edits
// collapse into a single render coordinator request once the user pauses for
// a quiet period. A second layer of coalescing inside the coordinator covers
// the case where typing resumes just as a render finishes.
package session

import (
	"context"
	"sync"
	"time"

	"cvforge/internal/logging"
	"cvforge/internal/types"
)

// DefaultDebounce is the quiet period observed before a render is requested.
const DefaultDebounce = 1500 * time.Millisecond

// Submitter is the coordinator surface a session needs.
type Submitter interface {
	Submit(ctx context.Context, content []byte) (*types.Outcome, error)
	Retry(ctx context.Context, content []byte) (*types.Outcome, error)
}

// Timer is the stoppable handle returned by a TimerFactory.
type Timer interface {
	Stop() bool
}

// TimerFactory schedules f after d. Injectable so debounce behavior can be
// tested against a fake clock.
type TimerFactory func(d time.Duration, f func()) Timer

func realTimer(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// State is the session's externally visible render state.
type State int

const (
	StateIdle State = iota
	StateRendering
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRendering:
		return "rendering"
	default:
		return "unknown"
	}
}

// Status is the polled status surface for one session.
type Status struct {
	SessionID   string         `json:"session_id"`
	State       string         `json:"state"`
	LastOutcome *types.Outcome `json:"last_outcome,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
}

// Session tracks the latest content of one editing surface and debounces
// render requests for it.
type Session struct {
	id       string
	coord    Submitter
	debounce time.Duration
	newTimer TimerFactory
	logger   logging.Logger

	mu          sync.Mutex
	timer       Timer
	latest      []byte
	rendering   bool
	lastOutcome *types.Outcome
	lastErr     error
	closed      bool
}

// NotifyEdit records content as the session's latest state and restarts the
// quiet-period timer. No render is requested until edits pause for the full
// debounce interval.
func (s *Session) NotifyEdit(content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.latest = append(s.latest[:0], content...)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.newTimer(s.debounce, s.fire)
}

// fire runs when the quiet period elapses without an intervening edit.
func (s *Session) fire() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	content := append([]byte(nil), s.latest...)
	s.rendering = true
	s.mu.Unlock()

	ctx := context.Background()
	outcome, err := s.coord.Submit(ctx, content)

	s.mu.Lock()
	s.rendering = false
	s.lastErr = err
	if err == nil {
		s.lastOutcome = outcome
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn(ctx, err, "debounced render failed", "session_id", s.id)
	}
}

// ForceRender bypasses the debounce timer but still goes through the
// coordinator's cache and serialization logic.
func (s *Session) ForceRender(ctx context.Context, content []byte) (*types.Outcome, error) {
	return s.renderNow(ctx, content, s.coord.Submit)
}

// Retry forces a fresh render attempt ignoring a cached outcome for the same
// fingerprint. Exposed for the manual "retry" action after a transient
// renderer failure.
func (s *Session) Retry(ctx context.Context, content []byte) (*types.Outcome, error) {
	return s.renderNow(ctx, content, s.coord.Retry)
}

func (s *Session) renderNow(ctx context.Context, content []byte, via func(context.Context, []byte) (*types.Outcome, error)) (*types.Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, context.Canceled
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.latest = append(s.latest[:0], content...)
	s.rendering = true
	s.mu.Unlock()

	outcome, err := via(ctx, content)

	s.mu.Lock()
	s.rendering = false
	s.lastErr = err
	if err == nil {
		s.lastOutcome = outcome
	}
	s.mu.Unlock()
	return outcome, err
}

// Status reports the session's render state and last outcome.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		SessionID:   s.id,
		State:       StateIdle.String(),
		LastOutcome: s.lastOutcome,
	}
	if s.rendering {
		st.State = StateRendering.String()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Close stops the timer and drops any pending edit. After Close the session
// never invokes the coordinator again.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Manager owns the live sessions, keyed by session ID.
type Manager struct {
	coord    Submitter
	debounce time.Duration
	newTimer TimerFactory
	logger   logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDebounce overrides the quiet period.
func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// WithTimerFactory injects a timer implementation; used by fake-clock tests.
func WithTimerFactory(f TimerFactory) ManagerOption {
	return func(m *Manager) {
		m.newTimer = f
	}
}

// NewManager creates a session manager around the shared coordinator.
func NewManager(coord Submitter, logger logging.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	m := &Manager{
		coord:    coord,
		debounce: DefaultDebounce,
		newTimer: realTimer,
		logger:   logger.WithComponent("session"),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the session for id, creating it on first use.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := &Session{
		id:       id,
		coord:    m.coord,
		debounce: m.debounce,
		newTimer: m.newTimer,
		logger:   m.logger,
	}
	m.sessions[id] = s
	return s
}

// Remove closes and forgets the session for id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Close shuts down every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
