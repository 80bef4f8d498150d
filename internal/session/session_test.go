package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvforge/internal/types"
)

// fakeClock implements TimerFactory with manual firing, so debounce behavior
// is tested without real sleeps.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.stopped
	t.stopped = true
	return !was
}

func (c *fakeClock) factory(d time.Duration, f func()) Timer {
	t := &fakeTimer{f: f}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return t
}

// advance fires every timer that has not been cancelled, simulating the quiet
// period elapsing.
func (c *fakeClock) advance() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()

	for _, t := range timers {
		t.mu.Lock()
		stopped := t.stopped
		t.mu.Unlock()
		if !stopped {
			t.f()
		}
	}
}

func (c *fakeClock) scheduled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// fakeSubmitter records coordinator invocations.
type fakeSubmitter struct {
	mu       sync.Mutex
	submits  []string
	retries  []string
	outcome  *types.Outcome
	blockCh  chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, content []byte) (*types.Outcome, error) {
	f.mu.Lock()
	f.submits = append(f.submits, string(content))
	f.mu.Unlock()
	if f.blockCh != nil {
		<-f.blockCh
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &types.Outcome{Success: true}, nil
}

func (f *fakeSubmitter) Retry(ctx context.Context, content []byte) (*types.Outcome, error) {
	f.mu.Lock()
	f.retries = append(f.retries, string(content))
	f.mu.Unlock()
	return &types.Outcome{Success: true}, nil
}

func (f *fakeSubmitter) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submits...)
}

func newFakeSession(t *testing.T) (*Session, *fakeSubmitter, *fakeClock) {
	t.Helper()
	sub := &fakeSubmitter{}
	clock := &fakeClock{}
	m := NewManager(sub, nil, WithTimerFactory(clock.factory))
	return m.Get("s1"), sub, clock
}

func TestSession_DebounceCollapsesBurst(t *testing.T) {
	s, sub, clock := newFakeSession(t)

	// Five edits arrive faster than the quiet period.
	s.NotifyEdit([]byte("edit 1"))
	s.NotifyEdit([]byte("edit 2"))
	s.NotifyEdit([]byte("edit 3"))
	s.NotifyEdit([]byte("edit 4"))
	s.NotifyEdit([]byte("edit 5"))

	assert.Empty(t, sub.submitted(), "no render before the quiet period elapses")

	clock.advance()

	// Exactly one coordinator invocation, using the last edit's content.
	assert.Equal(t, []string{"edit 5"}, sub.submitted())
}

func TestSession_QuietPeriodPerEdit(t *testing.T) {
	s, sub, clock := newFakeSession(t)

	s.NotifyEdit([]byte("first"))
	clock.advance()
	s.NotifyEdit([]byte("second"))
	clock.advance()

	assert.Equal(t, []string{"first", "second"}, sub.submitted())
}

func TestSession_ForceRenderBypassesTimer(t *testing.T) {
	s, sub, clock := newFakeSession(t)

	s.NotifyEdit([]byte("typed"))
	require.Equal(t, 1, clock.scheduled())

	out, err := s.ForceRender(context.Background(), []byte("forced"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, []string{"forced"}, sub.submitted())

	// The pending debounce timer was cancelled; advancing fires nothing new.
	clock.advance()
	assert.Equal(t, []string{"forced"}, sub.submitted())
}

func TestSession_RetryUsesCoordinatorRetry(t *testing.T) {
	s, sub, _ := newFakeSession(t)

	_, err := s.Retry(context.Background(), []byte("same content"))
	require.NoError(t, err)
	assert.Equal(t, []string{"same content"}, sub.retries)
	assert.Empty(t, sub.submitted())
}

func TestSession_StatusTransitions(t *testing.T) {
	s, sub, clock := newFakeSession(t)

	assert.Equal(t, "idle", s.Status().State)

	sub.blockCh = make(chan struct{})
	s.NotifyEdit([]byte("content"))

	done := make(chan struct{})
	go func() {
		clock.advance()
		close(done)
	}()

	// Wait for the render to be in flight.
	require.Eventually(t, func() bool {
		return s.Status().State == "rendering"
	}, time.Second, 5*time.Millisecond)

	close(sub.blockCh)
	<-done

	st := s.Status()
	assert.Equal(t, "idle", st.State)
	require.NotNil(t, st.LastOutcome)
	assert.True(t, st.LastOutcome.Success)
}

func TestSession_CloseStopsFutureRenders(t *testing.T) {
	s, sub, clock := newFakeSession(t)

	s.NotifyEdit([]byte("content"))
	s.Close()
	clock.advance()

	assert.Empty(t, sub.submitted())

	// Edits after close are ignored.
	s.NotifyEdit([]byte("more"))
	clock.advance()
	assert.Empty(t, sub.submitted())
}

func TestManager_SessionsAreKeyed(t *testing.T) {
	sub := &fakeSubmitter{}
	m := NewManager(sub, nil)

	a := m.Get("a")
	b := m.Get("b")
	assert.NotSame(t, a, b)
	assert.Same(t, a, m.Get("a"))

	m.Remove("a")
	assert.NotSame(t, a, m.Get("a"), "removed session is recreated fresh")
}

func TestManager_Close(t *testing.T) {
	sub := &fakeSubmitter{}
	clock := &fakeClock{}
	m := NewManager(sub, nil, WithTimerFactory(clock.factory))

	m.Get("a").NotifyEdit([]byte("x"))
	m.Get("b").NotifyEdit([]byte("y"))
	m.Close()
	clock.advance()

	assert.Empty(t, sub.submitted())
}

func TestSession_RealTimerDebounce(t *testing.T) {
	// End-to-end with real timers and a short quiet period.
	sub := &fakeSubmitter{}
	m := NewManager(sub, nil, WithDebounce(30*time.Millisecond))
	s := m.Get("s1")

	s.NotifyEdit([]byte("a"))
	time.Sleep(10 * time.Millisecond)
	s.NotifyEdit([]byte("b"))
	time.Sleep(10 * time.Millisecond)
	s.NotifyEdit([]byte("c"))

	require.Eventually(t, func() bool {
		return len(sub.submitted()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"c"}, sub.submitted())

	// No further renders occur once quiet.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{"c"}, sub.submitted())
}
