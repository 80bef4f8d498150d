// Package renderer wraps the external CV rendering engine behind a small
// interface so the coordinator can be tested without shelling out.
//
// The production implementation invokes the rendercv CLI synchronously in a
// caller-specified working directory. It is assumed safely retryable: a
// failed or killed invocation leaves nothing behind except files inside its
// own working directory, which the artifact store owns.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cvforge/internal/errors"
	"cvforge/internal/logging"
)

// Result holds the files produced by one successful render invocation.
type Result struct {
	// OutputFiles are paths relative to the working directory, sorted.
	OutputFiles []string
	// PDF is the relative path of the rendered PDF, empty if none was found.
	PDF string
	// Stdout is the renderer's standard output, kept for diagnostics.
	Stdout string
}

// Renderer renders the document at sourcePath into workDir.
type Renderer interface {
	Render(ctx context.Context, sourcePath, workDir string) (*Result, error)
}

// outputExtensions are the formats the render engine is known to emit.
var outputExtensions = map[string]bool{
	".pdf":  true,
	".html": true,
	".png":  true,
	".md":   true,
	".typ":  true,
}

// CommandRenderer runs the render engine as a subprocess.
type CommandRenderer struct {
	command []string
	logger  logging.Logger
}

// DefaultCommand is the rendercv invocation used when none is configured.
var DefaultCommand = []string{"rendercv", "render"}

// NewCommandRenderer creates a renderer around the given command line. The
// source path is appended as the final argument.
func NewCommandRenderer(command []string, logger logging.Logger) *CommandRenderer {
	if len(command) == 0 {
		command = DefaultCommand
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &CommandRenderer{
		command: command,
		logger:  logger.WithComponent("renderer"),
	}
}

// Render invokes the external engine with workDir as its working directory.
// The context deadline bounds the whole invocation; on expiry the subprocess
// is killed so it cannot hold the render serialization lock indefinitely.
func (r *CommandRenderer) Render(ctx context.Context, sourcePath, workDir string) (*Result, error) {
	start := time.Now()

	args := append(append([]string{}, r.command[1:]...), sourcePath)
	cmd := exec.CommandContext(ctx, r.command[0], args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug(ctx, "invoking render engine",
		"command", strings.Join(r.command, " "),
		"source", sourcePath,
		"work_dir", workDir,
	)

	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, errors.NewTimeoutError("render engine timed out", elapsed)
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, errors.NewRenderError("render engine failed", detail, err)
	}

	result, err := collectOutputs(workDir)
	if err != nil {
		return nil, err
	}
	if len(result.OutputFiles) == 0 {
		return nil, errors.NewRenderError("render engine produced no output",
			strings.TrimSpace(stderr.String()), nil)
	}
	result.Stdout = stdout.String()

	r.logger.Debug(ctx, "render engine finished",
		"duration", elapsed.String(),
		"outputs", len(result.OutputFiles),
	)
	return result, nil
}

// collectOutputs walks workDir for files in known output formats. rendercv
// nests results in its own subdirectory, so the walk is recursive.
func collectOutputs(workDir string) (*Result, error) {
	result := &Result{}
	err := filepath.Walk(workDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !outputExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, relErr := filepath.Rel(workDir, path)
		if relErr != nil {
			return relErr
		}
		result.OutputFiles = append(result.OutputFiles, rel)
		if result.PDF == "" && strings.EqualFold(filepath.Ext(path), ".pdf") {
			result.PDF = rel
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewRenderError("collecting render outputs", "", fmt.Errorf("walking %s: %w", workDir, err))
	}
	sort.Strings(result.OutputFiles)
	return result, nil
}
