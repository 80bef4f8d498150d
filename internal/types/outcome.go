// Package types contains the shared data types passed between the render
// coordinator, cache, artifact store and the preview server.
package types

import (
	"time"
)

// ArtifactRef points at the on-disk output of one render attempt. The
// directory is owned by the artifact store and may be pruned once enough
// newer renders have completed.
type ArtifactRef struct {
	// ID is the collision-free directory name, e.g. render_20260830T101502_000007.
	ID string `json:"id"`
	// Dir is the absolute path of the artifact directory.
	Dir string `json:"dir"`
	// PDF is the path of the rendered PDF inside Dir, empty if none was produced.
	PDF string `json:"pdf,omitempty"`
	// Files lists all output files (pdf, html, typ, png, source copy) relative to Dir.
	Files []string `json:"files,omitempty"`
}

// Outcome is the immutable result of one render attempt. Exactly one of the
// success or failure halves is populated.
type Outcome struct {
	Fingerprint string        `json:"fingerprint"`
	Success     bool          `json:"success"`
	Artifact    *ArtifactRef  `json:"artifact,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Category    string        `json:"category,omitempty"` // failure category: render, timeout, input
	Reason      string        `json:"reason,omitempty"`   // failure detail
	RenderedAt  time.Time     `json:"rendered_at"`
	Duration    time.Duration `json:"duration"`
}

// Failed reports whether the attempt produced a failure outcome.
func (o *Outcome) Failed() bool {
	return !o.Success
}
