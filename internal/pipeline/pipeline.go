// Package pipeline runs the content-tailoring workflow: an ordered sequence
// of document transformations against the language model, turning the master
// CV plus a job advertisement into the working CV. The pipeline is invoked
// once per workflow run and is deliberately outside the real-time render
// core; the editor hands its output to the render session afterwards.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"cvforge/internal/errors"
	"cvforge/internal/llm"
	"cvforge/internal/logging"
)

// Step is one named transformation in the workflow.
type Step struct {
	Name    string
	Message string
	Prompt  string
}

// Steps is the workflow sequence, in execution order. The first step derives
// the job requirements; the rest rewrite document sections against them; the
// final validation step is local and does not call the model.
var Steps = []Step{
	{
		Name:    "parse_job_ad",
		Message: "Analyzing job requirements...",
		Prompt:  "Extract the key requirements, skills and keywords from this job advertisement. Respond with a JSON object {\"requirements\": [...], \"skills\": [...], \"keywords\": [...]}.",
	},
	{
		Name:    "reorder_sections",
		Message: "Optimizing section order...",
		Prompt:  "Reorder the sections of this CV so the most relevant ones for the job requirements come first. Respond with the full updated CV as JSON.",
	},
	{
		Name:    "update_summary",
		Message: "Updating professional summary...",
		Prompt:  "Rewrite the professional summary of this CV to address the job requirements. Respond with the full updated CV as JSON.",
	},
	{
		Name:    "tailor_experience",
		Message: "Tailoring work experience...",
		Prompt:  "Rewrite the experience entries of this CV to emphasize responsibilities matching the job requirements, without inventing facts. Respond with the full updated CV as JSON.",
	},
	{
		Name:    "tailor_projects",
		Message: "Tailoring projects...",
		Prompt:  "Rewrite the project entries of this CV to highlight relevance to the job requirements, without inventing facts. Respond with the full updated CV as JSON.",
	},
	{
		Name:    "tailor_education",
		Message: "Tailoring education...",
		Prompt:  "Adjust the education section of this CV to emphasize coursework and achievements relevant to the job requirements. Respond with the full updated CV as JSON.",
	},
	{
		Name:    "tailor_certifications",
		Message: "Tailoring certifications...",
		Prompt:  "Reorder and reword the certifications of this CV by relevance to the job requirements. Respond with the full updated CV as JSON.",
	},
	{
		Name:    "tailor_extracurricular",
		Message: "Tailoring extracurricular activities...",
		Prompt:  "Adjust the extracurricular section of this CV by relevance to the job requirements. Respond with the full updated CV as JSON.",
	},
	{
		Name:    "tailor_skills",
		Message: "Tailoring skills...",
		Prompt:  "Reorder the skills of this CV so those matching the job requirements come first; drop nothing. Respond with the full updated CV as JSON.",
	},
}

// Progress reports workflow advancement to the caller.
type Progress struct {
	Step    string `json:"step"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// ProgressFunc receives progress updates; may be nil.
type ProgressFunc func(Progress)

// Result is the outcome of one workflow run.
type Result struct {
	WorkingCV []byte
	Warnings  []string
}

// Pipeline executes the tailoring workflow.
type Pipeline struct {
	client llm.Client
	logger logging.Logger
}

// New creates a pipeline around the given model client.
func New(client llm.Client, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Pipeline{
		client: client,
		logger: logger.WithComponent("pipeline"),
	}
}

// Tailor transforms masterCV against jobAd and returns the working CV as
// YAML. Individual step failures are collected as warnings and leave the
// document at its last good state; only an unusable master CV or a cancelled
// context aborts the run.
func (p *Pipeline) Tailor(ctx context.Context, masterCV []byte, jobAd string, onProgress ProgressFunc) (*Result, error) {
	var working map[string]interface{}
	if err := yaml.Unmarshal(masterCV, &working); err != nil {
		return nil, errors.NewInputError("master CV is not valid YAML", err)
	}
	if len(working) == 0 {
		return nil, errors.NewInputError("master CV is empty", nil)
	}

	collector := errors.NewCollector()
	total := len(Steps) + 1 // plus final validation

	report := func(i int, step Step) {
		if onProgress != nil {
			onProgress(Progress{
				Step:    step.Name,
				Message: step.Message,
				Percent: i * 100 / total,
			})
		}
	}

	var requirements json.RawMessage
	for i, step := range Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report(i, step)

		if step.Name == "parse_job_ad" {
			raw, err := p.client.GenerateJSON(ctx, step.Prompt, map[string]string{"job_advertisement": jobAd})
			if err != nil {
				// Without requirements the rewrite steps degrade to no-ops,
				// so surface this loudly but keep the document intact.
				collector.AddError(step.Name, err)
				p.logger.Warn(ctx, err, "job ad analysis failed")
				continue
			}
			requirements = raw
			continue
		}

		updated, err := p.runStep(ctx, step, working, requirements)
		if err != nil {
			collector.AddError(step.Name, err)
			p.logger.Warn(ctx, err, "tailoring step failed", "step", step.Name)
			continue
		}
		working = updated
	}

	report(total-1, Step{Name: "validate_yaml", Message: "Validating final output..."})
	out, err := yaml.Marshal(working)
	if err != nil {
		return nil, fmt.Errorf("serializing working CV: %w", err)
	}
	// Round-trip to prove the output parses as a document again.
	var check map[string]interface{}
	if err := yaml.Unmarshal(out, &check); err != nil {
		return nil, fmt.Errorf("validating working CV: %w", err)
	}

	if onProgress != nil {
		onProgress(Progress{Step: "complete", Message: "Tailoring complete", Percent: 100})
	}
	return &Result{WorkingCV: out, Warnings: collector.Messages()}, nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step, working map[string]interface{}, requirements json.RawMessage) (map[string]interface{}, error) {
	input := map[string]interface{}{
		"cv":           working,
		"requirements": requirements,
	}
	raw, err := p.client.GenerateJSON(ctx, step.Prompt, input)
	if err != nil {
		return nil, err
	}

	var updated map[string]interface{}
	if err := json.Unmarshal(raw, &updated); err != nil {
		return nil, fmt.Errorf("step returned malformed JSON: %w", err)
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("step returned an empty document")
	}
	return updated, nil
}

// Runner guards the workflow so at most one run executes at a time.
type Runner struct {
	pipeline *Pipeline

	mu      sync.Mutex
	running bool
}

// ErrAlreadyRunning is returned when a workflow run is requested while one
// is in progress.
var ErrAlreadyRunning = fmt.Errorf("a tailoring workflow is already running")

// NewRunner wraps pipeline with the single-run guard.
func NewRunner(pipeline *Pipeline) *Runner {
	return &Runner{pipeline: pipeline}
}

// Running reports whether a workflow run is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Run executes one workflow if none is in flight.
func (r *Runner) Run(ctx context.Context, masterCV []byte, jobAd string, onProgress ProgressFunc) (*Result, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()
	return r.pipeline.Tailor(ctx, masterCV, jobAd, onProgress)
}
