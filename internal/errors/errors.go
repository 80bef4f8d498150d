// Package errors defines the error taxonomy for the render-sync core and a
// collector for non-fatal pipeline warnings.
package errors

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Category classifies where in the render flow an error originated.
type Category int

const (
	// CategoryInput: content could not be validated or normalized before
	// fingerprinting. Reported synchronously, no render is attempted.
	CategoryInput Category = iota
	// CategoryRender: the external render command returned an error.
	CategoryRender
	// CategoryTimeout: the render attempt exceeded its wall-clock bound.
	CategoryTimeout
	// CategoryArtifactIO: artifact directory creation or deletion failed.
	// Never fatal to a render outcome.
	CategoryArtifactIO
)

// String returns the string representation of the category
func (c Category) String() string {
	switch c {
	case CategoryInput:
		return "input"
	case CategoryRender:
		return "render"
	case CategoryTimeout:
		return "timeout"
	case CategoryArtifactIO:
		return "artifact-io"
	default:
		return "unknown"
	}
}

// RenderError is an error with a category and optional detail from the
// external renderer (stderr output, exit status).
type RenderError struct {
	Category Category
	Message  string
	Detail   string
	Err      error
}

// Error implements the error interface
func (e *RenderError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Category, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap returns the wrapped error
func (e *RenderError) Unwrap() error {
	return e.Err
}

// NewInputError reports content that failed validation before fingerprinting.
func NewInputError(msg string, err error) *RenderError {
	return &RenderError{Category: CategoryInput, Message: msg, Err: err}
}

// NewRenderError reports a failed external render invocation.
func NewRenderError(msg, detail string, err error) *RenderError {
	return &RenderError{Category: CategoryRender, Message: msg, Detail: detail, Err: err}
}

// NewTimeoutError reports a render attempt that exceeded its deadline.
func NewTimeoutError(msg string, elapsed time.Duration) *RenderError {
	return &RenderError{
		Category: CategoryTimeout,
		Message:  msg,
		Detail:   fmt.Sprintf("after %s", elapsed),
	}
}

// NewArtifactIOError reports a non-fatal artifact directory failure.
func NewArtifactIOError(msg string, err error) *RenderError {
	return &RenderError{Category: CategoryArtifactIO, Message: msg, Err: err}
}

// CategoryOf extracts the category from err, or CategoryRender if err is not
// a RenderError.
func CategoryOf(err error) Category {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Category
	}
	return CategoryRender
}

// IsTimeout reports whether err is a timeout-category RenderError.
func IsTimeout(err error) bool {
	var re *RenderError
	return errors.As(err, &re) && re.Category == CategoryTimeout
}

// Warning is a non-fatal problem recorded during a pipeline run or render.
type Warning struct {
	Step      string
	Message   string
	Timestamp time.Time
}

// Collector accumulates warnings from concurrent steps.
type Collector struct {
	mu       sync.RWMutex
	warnings []Warning
}

// NewCollector creates a new warning collector
func NewCollector() *Collector {
	return &Collector{warnings: make([]Warning, 0)}
}

// Add records a warning for a named step.
func (c *Collector) Add(step, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, Warning{
		Step:      step,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// AddError records an error as a warning if it is non-nil.
func (c *Collector) AddError(step string, err error) {
	if err == nil {
		return
	}
	c.Add(step, err.Error())
}

// Warnings returns a copy of all collected warnings.
func (c *Collector) Warnings() []Warning {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Messages returns only the warning messages, in order.
func (c *Collector) Messages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := make([]string, len(c.warnings))
	for i, w := range c.warnings {
		msgs[i] = w.Message
	}
	return msgs
}

// HasWarnings reports whether any warnings were collected.
func (c *Collector) HasWarnings() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.warnings) > 0
}
