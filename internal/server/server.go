// Package server provides the bridge's HTTP surface: the session API,
// the approval endpoint, and live activity streaming over SSE and
// websocket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/bridge/config"
	"github.com/grovetools/bridge/git"
	"github.com/grovetools/bridge/internal/engine"
	"github.com/grovetools/bridge/logging"
	"github.com/grovetools/bridge/pkg/approval"
	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/tracker"
	"github.com/grovetools/bridge/pkg/workspace"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RunningConfig is the active configuration exposed via /api/config so
// clients can verify what the server is running with.
type RunningConfig struct {
	BaseURL          string        `json:"base_url"`
	DefaultRunner    string        `json:"default_runner"`
	SessionRetention time.Duration `json:"session_retention"`
	ApprovalTimeout  time.Duration `json:"approval_timeout"`
	StartedAt        time.Time     `json:"started_at"`
	ConfigReloads    int           `json:"config_reloads"`
}

// Server manages the bridge HTTP server.
type Server struct {
	logger     *logrus.Entry
	server     *http.Server
	engine     *engine.Engine
	tracker    *tracker.MemoryTracker
	approvals  *approval.Broker
	workspaces *workspace.Manager
	cfg        *config.Config
	upgrader   websocket.Upgrader

	mu            sync.Mutex
	runningConfig RunningConfig
}

// New creates a server over the given collaborators.
func New(cfg *config.Config, eng *engine.Engine, mem *tracker.MemoryTracker, approvals *approval.Broker, workspaces *workspace.Manager) *Server {
	return &Server{
		logger:     logging.NewLogger("server"),
		engine:     eng,
		tracker:    mem,
		approvals:  approvals,
		workspaces: workspaces,
		cfg:        cfg,
		upgrader:   websocket.Upgrader{},
		runningConfig: RunningConfig{
			BaseURL:          cfg.Settings.BaseURL,
			DefaultRunner:    cfg.Settings.DefaultRunner,
			SessionRetention: cfg.Settings.RetentionDuration(),
			ApprovalTimeout:  cfg.Settings.ApprovalTimeoutDuration(),
			StartedAt:        time.Now(),
		},
	}
}

// NotifyReload records a configuration reload for /api/config.
func (s *Server) NotifyReload(file string) {
	s.mu.Lock()
	s.runningConfig.ConfigReloads++
	s.mu.Unlock()
	s.logger.WithField("file", file).Info("Configuration changed on disk")
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/api/requests", s.handleCreateRequest)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.HandleFunc("/api/feed", s.handleFeed)
	mux.HandleFunc("/api/config", s.handleGetConfig)
	mux.HandleFunc("/approval/", s.handleApproval)

	return h2c.NewHandler(mux, &http2.Server{})
}

// ListenAndServe starts the server on the configured host and port. It
// blocks until the server stops or fails.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Settings.ServerHost, s.cfg.Settings.ServerPort)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.WithField("addr", addr).Info("Bridge listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server. Pending approvals are rejected
// first so no workflow is left waiting on a dead server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.approvals != nil {
		s.approvals.Shutdown()
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// sessionView decorates a session with its workspace git status.
type sessionView struct {
	*models.Session
	WorkspaceStatus *git.StatusInfo `json:"workspace_status,omitempty"`
}

func (s *Server) viewOf(sess *models.Session) sessionView {
	view := sessionView{Session: sess}
	if s.workspaces != nil {
		if status, err := s.workspaces.Status(sess.Workspace); err == nil {
			view.WorkspaceStatus = status
		}
	}
	return view
}

// handleSessions returns all sessions, or only active ones with
// ?active=true.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	// Snapshots, not live pointers: these get marshaled while message
	// streams keep mutating the sessions.
	var sessions []*models.Session
	if r.URL.Query().Get("active") == "true" {
		sessions = s.engine.Manager().SnapshotActive()
	} else {
		sessions = s.engine.Manager().SnapshotAll()
	}

	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, s.viewOf(sess))
	}
	writeJSON(w, views)
}

// handleSessionByID serves /api/sessions/{id} and its sub-resources
// /entries and /activities.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	sessionID := parts[0]
	if sessionID == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	sess, ok := s.engine.Manager().Snapshot(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		writeJSON(w, s.viewOf(sess))
		return
	}

	switch parts[1] {
	case "entries":
		writeJSON(w, s.engine.Manager().Entries(sessionID))
	case "activities":
		writeJSON(w, s.tracker.VisibleActivities(sessionID))
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// createRequestBody is the payload for POST /api/requests.
type createRequestBody struct {
	Repository string `json:"repository"`
	Issue      struct {
		ID         string `json:"id"`
		Identifier string `json:"identifier"`
		Title      string `json:"title"`
	} `json:"issue"`
	Request string `json:"request"`

	// Session resumes an existing session instead of creating one.
	Session string `json:"session,omitempty"`
}

// handleCreateRequest starts a new agent session for an issue, or
// routes a follow-up prompt into an existing session.
func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if body.Session != "" {
		if err := s.engine.ResumeSession(r.Context(), body.Session, body.Request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]string{"session": body.Session})
		return
	}

	repo := s.findRepository(body.Repository)
	if repo == nil {
		http.Error(w, fmt.Sprintf("unknown repository '%s'", body.Repository), http.StatusBadRequest)
		return
	}

	issue := models.IssueMinimal{
		ID:         body.Issue.ID,
		Identifier: body.Issue.Identifier,
		Title:      body.Issue.Title,
	}
	sessionID, err := s.engine.HandleRequest(r.Context(), repo, issue, body.Request)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"session": sessionID})
}

func (s *Server) findRepository(id string) *config.RepositoryConfig {
	for i := range s.cfg.Repositories {
		if s.cfg.Repositories[i].ID == id {
			return &s.cfg.Repositories[i]
		}
	}
	return nil
}

// handleStream provides Server-Sent Events with every created
// activity.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.tracker.Subscribe()
	defer cancel()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	s.logger.Debug("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case activity, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(activity)
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal activity")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleFeed provides the same activity stream over a websocket.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, cancel := s.tracker.Subscribe()
	defer cancel()

	s.logger.Debug("Feed client connected")

	for {
		select {
		case <-r.Context().Done():
			return
		case activity, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(activity); err != nil {
				s.logger.WithError(err).Debug("Feed client write failed")
				return
			}
		}
	}
}

// approvalDecisionBody is the payload for POST /approval/{sessionID}.
type approvalDecisionBody struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// handleApproval serves the approval gate: GET reports whether a
// request is pending, POST resolves it.
func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/approval/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		age, pending := s.approvals.Pending(sessionID)
		writeJSON(w, map[string]interface{}{
			"session": sessionID,
			"pending": pending,
			"age":     age.String(),
		})

	case http.MethodPost:
		var body approvalDecisionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.approvals.Resolve(sessionID, body.Approved, body.Feedback); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.logger.WithFields(logrus.Fields{
			"session":  sessionID,
			"approved": body.Approved,
		}).Info("Approval resolved via API")
		writeJSON(w, map[string]bool{"resolved": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cfg := s.runningConfig
	s.mu.Unlock()
	writeJSON(w, cfg)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
