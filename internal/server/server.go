// Package server exposes the CV editor over HTTP: a browser editor page,
// JSON endpoints for saving and tailoring the CV, artifact downloads, and a
// WebSocket channel pushing render status to connected editors.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"cvforge/internal/artifacts"
	"cvforge/internal/config"
	"cvforge/internal/coordinator"
	"cvforge/internal/logging"
	"cvforge/internal/pipeline"
	"cvforge/internal/session"
	"cvforge/internal/types"
	"cvforge/internal/watcher"
)

// pdfCacheSize bounds the number of artifact files kept in memory for
// repeated preview fetches.
const pdfCacheSize = 16

// editorSession is the session key for the single browser editing surface.
const editorSession = "editor"

// PreviewServer serves the CV editor with live render feedback.
type PreviewServer struct {
	config   *config.Config
	logger   logging.Logger
	coord    *coordinator.Coordinator
	store    *artifacts.Store
	sessions *session.Manager
	runner   *pipeline.Runner

	httpServer  *http.Server
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]*client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *client
	unregister   chan *websocket.Conn

	fileCache *lru.Cache[string, []byte]

	shutdownOnce sync.Once
}

// New wires a preview server. runner may be nil when no LLM credentials are
// configured; the tailor endpoint then reports the feature as unavailable.
func New(cfg *config.Config, coord *coordinator.Coordinator, store *artifacts.Store, runner *pipeline.Runner, logger logging.Logger) (*PreviewServer, error) {
	fileCache, err := lru.New[string, []byte](pdfCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating artifact file cache: %w", err)
	}

	s := &PreviewServer{
		config:     cfg,
		logger:     logger.WithComponent("server"),
		coord:      coord,
		store:      store,
		runner:     runner,
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *websocket.Conn),
		fileCache:  fileCache,
	}

	// Sessions submit through the server so every completed render is
	// pushed to connected editors.
	s.sessions = session.NewManager(&notifyingSubmitter{server: s}, logger,
		session.WithDebounce(cfg.Session.Debounce))

	return s, nil
}

// routes builds the HTTP handler tree.
func (s *PreviewServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/cv", s.handleMasterCV)
	mux.HandleFunc("/api/job", s.handleJobAd)
	mux.HandleFunc("/api/tailor", s.handleTailor)
	mux.HandleFunc("/api/working", s.handleWorkingCV)
	mux.HandleFunc("/api/edit", s.handleEdit)
	mux.HandleFunc("/api/render", s.handleRender)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/cleanup", s.handleCleanup)
	mux.HandleFunc("/artifacts/", s.handleArtifact)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return s.logRequests(mux)
}

// Start runs the HTTP server, WebSocket hub and working-file watcher until
// ctx is cancelled.
func (s *PreviewServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // tailoring responses can outlive any fixed bound
	}
	s.serverMutex.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.runHub(ctx)
		return nil
	})

	// External edits to the working CV (editor of choice, scripts) feed
	// the same debounced render path as browser edits.
	fw, err := watcher.New(s.config.Files.WorkingCV, func(content []byte) {
		s.sessions.Get(editorSession).NotifyEdit(content)
	}, s.logger)
	if err != nil {
		s.logger.Warn(ctx, err, "working CV watcher disabled",
			"path", s.config.Files.WorkingCV)
	} else {
		g.Go(func() error {
			defer fw.Stop()
			return fw.Start(ctx)
		})
	}

	g.Go(func() error {
		s.logger.Info(ctx, "preview server listening", "addr", addr)
		err := s.httpServer.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		return s.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and closes all sessions and WebSocket
// connections. Safe to call more than once.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.sessions.Close()

		s.clientsMutex.Lock()
		for conn := range s.clients {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		srv := s.httpServer
		s.serverMutex.RUnlock()
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err = srv.Shutdown(shutdownCtx)
		}
	})
	return err
}

// notifyingSubmitter forwards render requests to the coordinator and pushes
// the resulting outcome to connected WebSocket clients.
type notifyingSubmitter struct {
	server *PreviewServer
}

func (n *notifyingSubmitter) Submit(ctx context.Context, content []byte) (*types.Outcome, error) {
	n.server.broadcastEvent("render_started", nil)
	outcome, err := n.server.coord.Submit(ctx, content)
	n.server.notifyOutcome(outcome, err)
	return outcome, err
}

func (n *notifyingSubmitter) Retry(ctx context.Context, content []byte) (*types.Outcome, error) {
	n.server.broadcastEvent("render_started", nil)
	outcome, err := n.server.coord.Retry(ctx, content)
	n.server.notifyOutcome(outcome, err)
	return outcome, err
}

func (s *PreviewServer) notifyOutcome(outcome *types.Outcome, err error) {
	if err != nil {
		s.broadcastEvent("render_error", map[string]string{"error": err.Error()})
		return
	}
	s.broadcastEvent("render_complete", outcome)
}

func (s *PreviewServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}
