package renderer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "cvforge/internal/errors"
)

// scriptRenderer builds a CommandRenderer around a shell snippet. The source
// path arrives as $0, the working directory is the shell's cwd.
func scriptRenderer(script string) *CommandRenderer {
	return NewCommandRenderer([]string{"sh", "-c", script}, nil)
}

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cv:\n  name: Ada\n"), 0o600))
	return path
}

func TestCommandRenderer_Success(t *testing.T) {
	r := scriptRenderer(`printf '%%PDF' > cv.pdf; printf '<html/>' > cv.html`)
	workDir := t.TempDir()

	result, err := r.Render(context.Background(), writeSource(t), workDir)
	require.NoError(t, err)

	assert.Equal(t, []string{"cv.html", "cv.pdf"}, result.OutputFiles)
	assert.Equal(t, "cv.pdf", result.PDF)
}

func TestCommandRenderer_NestedOutput(t *testing.T) {
	// rendercv writes into its own subdirectory.
	r := scriptRenderer(`mkdir -p rendercv_output && printf '%%PDF' > rendercv_output/cv.pdf`)
	workDir := t.TempDir()

	result, err := r.Render(context.Background(), writeSource(t), workDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("rendercv_output", "cv.pdf"), result.PDF)
}

func TestCommandRenderer_FailureCarriesStderr(t *testing.T) {
	r := scriptRenderer(`echo 'invalid section: foo' >&2; exit 1`)

	_, err := r.Render(context.Background(), writeSource(t), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryRender, apperrors.CategoryOf(err))
	assert.Contains(t, err.Error(), "invalid section: foo")
}

func TestCommandRenderer_Timeout(t *testing.T) {
	r := scriptRenderer(`sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Render(ctx, writeSource(t), t.TempDir())
	require.Error(t, err)

	assert.True(t, apperrors.IsTimeout(err), "expected timeout error, got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second, "subprocess must be killed at the deadline")
}

func TestCommandRenderer_NoOutputIsFailure(t *testing.T) {
	r := scriptRenderer(`true`)

	_, err := r.Render(context.Background(), writeSource(t), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no output")
}

func TestCommandRenderer_IgnoresNonOutputFiles(t *testing.T) {
	r := scriptRenderer(`printf '%%PDF' > cv.pdf; printf 'scratch' > notes.txt`)
	workDir := t.TempDir()

	result, err := r.Render(context.Background(), writeSource(t), workDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"cv.pdf"}, result.OutputFiles)
}

func TestNewCommandRenderer_DefaultCommand(t *testing.T) {
	r := NewCommandRenderer(nil, nil)
	assert.Equal(t, DefaultCommand, r.command)
}
