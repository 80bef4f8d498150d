package errors

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderError_Categories(t *testing.T) {
	tests := []struct {
		name     string
		err      *RenderError
		category Category
		contains string
	}{
		{
			name:     "input error",
			err:      NewInputError("invalid yaml", fmt.Errorf("line 3")),
			category: CategoryInput,
			contains: "input: invalid yaml",
		},
		{
			name:     "render failure carries detail",
			err:      NewRenderError("rendercv exited", "exit status 1", nil),
			category: CategoryRender,
			contains: "exit status 1",
		},
		{
			name:     "timeout reports elapsed",
			err:      NewTimeoutError("render timed out", 10*time.Second),
			category: CategoryTimeout,
			contains: "after 10s",
		},
		{
			name:     "artifact io",
			err:      NewArtifactIOError("prune failed", fmt.Errorf("busy")),
			category: CategoryArtifactIO,
			contains: "artifact-io",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.category, CategoryOf(tt.err))
			assert.Contains(t, tt.err.Error(), tt.contains)
		})
	}
}

func TestRenderError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("exec failed")
	err := NewRenderError("render", "", inner)
	assert.Equal(t, inner, err.Unwrap())
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(NewTimeoutError("t", time.Second)))
	assert.False(t, IsTimeout(NewRenderError("r", "", nil)))
	assert.False(t, IsTimeout(fmt.Errorf("plain")))
}

func TestCategoryOf_PlainError(t *testing.T) {
	// Uncategorized errors are treated as render failures.
	assert.Equal(t, CategoryRender, CategoryOf(fmt.Errorf("plain")))
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.HasWarnings())

	c.Add("tailor_skills", "section missing")
	c.AddError("validate", fmt.Errorf("bad date"))
	c.AddError("validate", nil) // nil errors are ignored

	warnings := c.Warnings()
	assert.Len(t, warnings, 2)
	assert.Equal(t, "tailor_skills", warnings[0].Step)
	assert.Equal(t, []string{"section missing", "bad date"}, c.Messages())
	assert.True(t, c.HasWarnings())
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Add("step", fmt.Sprintf("warning %d", n))
		}(i)
	}
	wg.Wait()
	assert.Len(t, c.Warnings(), 50)
}
