package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"cvforge/internal/pipeline"
	"cvforge/internal/types"
)

// maxBodySize bounds request bodies; CV documents and job ads are small.
const maxBodySize = 1 << 20

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, editorHTML)
}

// handleMasterCV reads or replaces the master CV document.
func (s *PreviewServer) handleMasterCV(w http.ResponseWriter, r *http.Request) {
	s.handleDocument(w, r, s.config.Files.MasterCV, true)
}

// handleJobAd reads or replaces the job advertisement text.
func (s *PreviewServer) handleJobAd(w http.ResponseWriter, r *http.Request) {
	s.handleDocument(w, r, s.config.Files.JobAd, false)
}

// handleWorkingCV returns the working CV document.
func (s *PreviewServer) handleWorkingCV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.serveFile(w, s.config.Files.WorkingCV)
}

func (s *PreviewServer) handleDocument(w http.ResponseWriter, r *http.Request, file string, validateYAML bool) {
	switch r.Method {
	case http.MethodGet:
		s.serveFile(w, file)

	case http.MethodPost:
		body, err := readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if validateYAML {
			var doc interface{}
			if err := yaml.Unmarshal(body, &doc); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid YAML: %v", err))
				return
			}
		}
		if err := writeFileAtomic(file, body); err != nil {
			s.logger.Error(r.Context(), err, "saving document", "file", file)
			writeError(w, http.StatusInternalServerError, "saving document failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleEdit saves the working CV and schedules a debounced render. The
// response confirms the save only; render results arrive over the WebSocket
// or via the status endpoint.
func (s *PreviewServer) handleEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var doc interface{}
	if err := yaml.Unmarshal(body, &doc); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid YAML: %v", err))
		return
	}
	if err := writeFileAtomic(s.config.Files.WorkingCV, body); err != nil {
		s.logger.Error(r.Context(), err, "saving working CV")
		writeError(w, http.StatusInternalServerError, "saving working CV failed")
		return
	}
	s.sessions.Get(editorSession).NotifyEdit(body)
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// handleRender renders the working CV immediately, skipping the debounce.
// With retry=1 a cached failure for the same content is discarded first.
func (s *PreviewServer) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	content, err := os.ReadFile(s.config.Files.WorkingCV)
	if err != nil {
		writeError(w, http.StatusNotFound, "working CV not found")
		return
	}

	sess := s.sessions.Get(editorSession)
	var outcome *types.Outcome
	if r.URL.Query().Get("retry") == "1" {
		outcome, err = sess.Retry(r.Context(), content)
	} else {
		outcome, err = sess.ForceRender(r.Context(), content)
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// statusResponse is the polled status surface for the editor.
type statusResponse struct {
	Session     interface{} `json:"session"`
	Coordinator string      `json:"coordinator_state"`
	Cache       interface{} `json:"cache"`
	Tailoring   bool        `json:"tailoring"`
}

func (s *PreviewServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := statusResponse{
		Session:     s.sessions.Get(editorSession).Status(),
		Coordinator: s.coord.State().String(),
		Cache:       s.coord.CacheStats(),
	}
	if s.runner != nil {
		resp.Tailoring = s.runner.Running()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *PreviewServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	removed, err := s.store.Prune(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// tailorResponse carries the tailored document back to the editor.
type tailorResponse struct {
	WorkingCV string   `json:"working_cv"`
	Warnings  []string `json:"warnings,omitempty"`
}

// handleTailor runs the full tailoring workflow against the saved master CV
// and job ad, saves the result as the working CV and schedules a render.
func (s *PreviewServer) handleTailor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "tailoring unavailable: no LLM configured")
		return
	}

	masterCV, err := os.ReadFile(s.config.Files.MasterCV)
	if err != nil {
		writeError(w, http.StatusBadRequest, "master CV not found; save it first")
		return
	}
	jobAd, err := os.ReadFile(s.config.Files.JobAd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "job advertisement not found; save it first")
		return
	}

	result, err := s.runner.Run(r.Context(), masterCV, string(jobAd), func(p pipeline.Progress) {
		s.broadcastEvent("tailor_progress", p)
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := writeFileAtomic(s.config.Files.WorkingCV, result.WorkingCV); err != nil {
		s.logger.Error(r.Context(), err, "saving tailored CV")
		writeError(w, http.StatusInternalServerError, "saving tailored CV failed")
		return
	}
	s.sessions.Get(editorSession).NotifyEdit(result.WorkingCV)
	s.broadcastEvent("tailor_complete", nil)

	writeJSON(w, http.StatusOK, tailorResponse{
		WorkingCV: string(result.WorkingCV),
		Warnings:  result.Warnings,
	})
}

// handleArtifact serves one file out of a rendered artifact directory.
// Path shape: /artifacts/{id}/{file}.
func (s *PreviewServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	id, file, ok := strings.Cut(rest, "/")
	if !ok || file == "" {
		http.NotFound(w, r)
		return
	}

	clean := path.Clean(file)
	if strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		http.NotFound(w, r)
		return
	}

	// Artifact files are immutable once finalized, so a cache hit stays
	// servable even after the directory has been pruned from disk.
	cacheKey := id + "/" + clean
	data, ok := s.fileCache.Get(cacheKey)
	if !ok {
		dir, err := s.store.Resolve(id)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		data, err = os.ReadFile(filepath.Join(dir, filepath.FromSlash(clean)))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		s.fileCache.Add(cacheKey, data)
	}

	ctype := mime.TypeByExtension(path.Ext(clean))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Write(data)
}

func (s *PreviewServer) serveFile(w http.ResponseWriter, file string) {
	data, err := os.ReadFile(file)
	if err != nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodySize)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty request body")
	}
	return body, nil
}

// writeFileAtomic replaces file contents via a rename so concurrent readers
// never observe a partial write.
func writeFileAtomic(file string, data []byte) error {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cvforge-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), file)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
