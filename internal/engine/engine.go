// Package engine orchestrates agent sessions: it routes incoming
// requests to procedures, launches runner processes for each
// subroutine, and advances sessions as results stream back.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/bridge/config"
	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/logging"
	"github.com/grovetools/bridge/pkg/approval"
	"github.com/grovetools/bridge/pkg/auth"
	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/procedure"
	"github.com/grovetools/bridge/pkg/profiling"
	"github.com/grovetools/bridge/pkg/runner"
	"github.com/grovetools/bridge/pkg/session"
	"github.com/grovetools/bridge/pkg/tracker"
	"github.com/grovetools/bridge/pkg/workspace"
	"github.com/sirupsen/logrus"
)

// Config wires an Engine's collaborators.
type Config struct {
	Tracker    tracker.IssueTracker
	Catalog    *procedure.Catalog
	Router     *procedure.Router
	Workspaces *workspace.Manager
	Approvals  *approval.Broker
	Refresher  *auth.Refresher

	// Runners maps each runner flavor to its implementation. Missing
	// flavors fall back to the CLI runners.
	Runners map[models.RunnerKind]runner.Runner

	// DefaultRunner is the flavor used for new sessions.
	DefaultRunner models.RunnerKind

	// PromptsDir optionally overrides built-in subroutine prompts.
	PromptsDir string

	// BaseURL is the externally reachable server address for approval
	// links.
	BaseURL string

	// SessionRetention bounds how long terminal sessions are kept.
	SessionRetention time.Duration

	// CleanupInterval is how often the retention sweep runs.
	CleanupInterval time.Duration
}

// Engine owns the session manager and the subroutine execution loop.
type Engine struct {
	manager   *session.Manager
	analyzer  *procedure.Analyzer
	catalog   *procedure.Catalog
	router    *procedure.Router
	wsManager *workspace.Manager
	approvals *approval.Broker
	refresher *auth.Refresher

	runners       map[models.RunnerKind]runner.Runner
	defaultRunner models.RunnerKind
	promptsDir    string

	retention       time.Duration
	cleanupInterval time.Duration

	// requests remembers the originating request text per session so
	// follow-up subroutines can reference it.
	mu       sync.Mutex
	requests map[string]string

	wg     sync.WaitGroup
	logger *logrus.Entry
}

// New builds an engine and the session manager it drives.
func New(cfg Config) *Engine {
	analyzer := procedure.NewAnalyzer(cfg.Catalog)

	runners := cfg.Runners
	if runners == nil {
		runners = map[models.RunnerKind]runner.Runner{
			models.RunnerClaude: runner.NewClaudeRunner(),
			models.RunnerGemini: runner.NewGeminiRunner(),
		}
	}
	defaultRunner := cfg.DefaultRunner
	if defaultRunner == "" {
		defaultRunner = models.RunnerClaude
	}
	retention := cfg.SessionRetention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}

	e := &Engine{
		analyzer:        analyzer,
		catalog:         cfg.Catalog,
		router:          cfg.Router,
		wsManager:       cfg.Workspaces,
		approvals:       cfg.Approvals,
		refresher:       cfg.Refresher,
		runners:         runners,
		defaultRunner:   defaultRunner,
		promptsDir:      cfg.PromptsDir,
		retention:       retention,
		cleanupInterval: cleanupInterval,
		requests:        make(map[string]string),
		logger:          logging.NewLogger("engine"),
	}

	e.manager = session.NewManager(session.Config{
		Tracker:      cfg.Tracker,
		Analyzer:     analyzer,
		Approvals:    cfg.Approvals,
		BaseURL:      cfg.BaseURL,
		ResumeParent: e.resumeParent,
	})
	return e
}

// Manager exposes the session manager for the API surface.
func (e *Engine) Manager() *session.Manager {
	return e.manager
}

// Start runs the subroutine transition loop and the retention sweep
// until ctx is cancelled, then waits for in-flight runs to drain.
func (e *Engine) Start(ctx context.Context) {
	cleanup := time.NewTicker(e.cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			return
		case transition := <-e.manager.Transitions():
			e.startNextSubroutine(ctx, transition)
		case <-cleanup.C:
			removed := e.manager.Cleanup(e.retention)
			purged := 0
			if e.approvals != nil {
				purged = e.approvals.PurgeExpired()
			}
			if removed > 0 || purged > 0 {
				e.logger.WithFields(logrus.Fields{
					"sessions":  removed,
					"approvals": purged,
				}).Info("Retention sweep")
			}
		}
	}
}

// HandleRequest starts a fresh agent session for an issue: it prepares
// a workspace, routes the request to a procedure, and launches the
// first subroutine. Returns the new session id.
func (e *Engine) HandleRequest(ctx context.Context, repo *config.RepositoryConfig, issue models.IssueMinimal, requestText string) (string, error) {
	defer profiling.Start("engine.handle_request").Stop()

	if strings.TrimSpace(requestText) == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "request text cannot be empty")
	}

	e.refreshTokenIfConfigured(ctx, repo)

	ws, err := e.wsManager.Prepare(ctx, repo, issue)
	if err != nil {
		return "", err
	}

	sessionID := newSessionID()
	e.manager.CreateSession(sessionID, issue.ID, issue, ws, e.defaultRunner)

	e.mu.Lock()
	e.requests[sessionID] = requestText
	e.mu.Unlock()

	if err := e.routeAndLaunch(ctx, sessionID, requestText); err != nil {
		return sessionID, err
	}
	return sessionID, nil
}

// ResumeSession routes a follow-up prompt on an existing session. The
// procedure is re-routed from scratch; a new request never continues a
// stale procedure.
func (e *Engine) ResumeSession(ctx context.Context, sessionID, requestText string) error {
	if _, ok := e.manager.Get(sessionID); !ok {
		return errors.SessionNotFound(sessionID)
	}

	e.mu.Lock()
	e.requests[sessionID] = requestText
	e.mu.Unlock()

	return e.routeAndLaunch(ctx, sessionID, requestText)
}

// SpawnChild creates a delegated child session sharing the parent's
// workspace. The child's final result is relayed back into the parent
// session when it completes.
func (e *Engine) SpawnChild(ctx context.Context, parentID string, issue models.IssueMinimal, requestText string) (string, error) {
	parent, ok := e.manager.Snapshot(parentID)
	if !ok {
		return "", errors.SessionNotFound(parentID)
	}

	childID := newSessionID()
	e.manager.CreateSession(childID, issue.ID, issue, parent.Workspace, parent.RunnerKind)
	e.manager.RegisterChild(childID, parentID)

	e.mu.Lock()
	e.requests[childID] = requestText
	e.mu.Unlock()

	if err := e.routeAndLaunch(ctx, childID, requestText); err != nil {
		return childID, err
	}
	return childID, nil
}

// routeAndLaunch classifies a request, initializes procedure metadata,
// and launches the first subroutine. Session state is read through
// snapshots; the live session is only touched through manager methods.
func (e *Engine) routeAndLaunch(ctx context.Context, sessionID, requestText string) error {
	e.manager.PostAnalyzingThought(ctx, sessionID)

	decision := e.router.DetermineRoutine(ctx, requestText)
	e.manager.PostProcedureSelectionThought(ctx, sessionID, decision.Procedure.Name, string(decision.Classification))

	proc := decision.Procedure
	if err := e.manager.InitializeProcedure(sessionID, proc); err != nil {
		return err
	}

	sess, ok := e.manager.Snapshot(sessionID)
	if !ok {
		return errors.SessionNotFound(sessionID)
	}
	current := e.analyzer.GetCurrent(sess)
	if current == nil {
		return errors.New(errors.ErrCodeWorkflowInvalid,
			fmt.Sprintf("procedure '%s' has no subroutines", proc.Name))
	}
	return e.launchSubroutine(ctx, sess, current, requestText, "")
}

// startNextSubroutine handles a subroutine transition from the session
// manager: the session advanced and needs a fresh run resuming the
// runner conversation.
func (e *Engine) startNextSubroutine(ctx context.Context, transition session.Transition) {
	sess, ok := e.manager.Snapshot(transition.SessionID)
	if !ok {
		e.logger.WithField("session", transition.SessionID).Warn("Transition for unknown session")
		return
	}

	current := e.analyzer.GetCurrent(sess)
	if current == nil {
		return
	}

	e.mu.Lock()
	requestText := e.requests[sess.SessionID]
	e.mu.Unlock()

	if err := e.launchSubroutine(ctx, sess, current, requestText, sess.RunnerSessionID); err != nil {
		e.logger.WithError(err).WithField("session", sess.SessionID).Error("Failed to launch subroutine")
	}
}

// launchSubroutine starts a runner process for one subroutine and
// consumes its message stream in the background.
func (e *Engine) launchSubroutine(ctx context.Context, sess *models.Session, sub *procedure.Subroutine, requestText, resumeID string) error {
	instruction, err := procedure.SubroutinePrompt(e.promptsDir, sub)
	if err != nil {
		return err
	}

	prompt := instruction
	if resumeID == "" {
		prompt = buildInitialPrompt(sess.Issue, instruction, requestText)
	}

	r, ok := e.runners[sess.RunnerKind]
	if !ok {
		return errors.New(errors.ErrCodeSessionNoRunner,
			fmt.Sprintf("no runner for kind '%s'", sess.RunnerKind))
	}
	e.manager.AttachRunner(sess.SessionID, r)

	msgs, err := r.Run(ctx, runner.RunConfig{
		Prompt:          prompt,
		WorkingDir:      sess.Workspace.Path,
		ResumeSessionID: resumeID,
		SingleTurn:      sub.SingleTurn,
		DisallowedTools: sub.DisallowedTools,
	})
	if err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"session":    sess.SessionID,
		"subroutine": sub.Name,
	}).Info("Launched subroutine")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for msg := range msgs {
			// HandleMessage already transitions the session to error
			// status on failure; keep draining so the runner process
			// can finish.
			_ = e.manager.HandleMessage(ctx, sess.SessionID, msg)
		}
	}()
	return nil
}

// resumeParent relays a completed child's result into the parent
// session by resuming the parent's runner conversation.
func (e *Engine) resumeParent(ctx context.Context, parentID, prompt, childID string) error {
	parent, ok := e.manager.Get(parentID)
	if !ok {
		return errors.SessionNotFound(parentID)
	}
	if parent.RunnerSessionID == "" {
		return errors.New(errors.ErrCodeSessionNoRunner,
			fmt.Sprintf("parent session '%s' has no runner conversation to resume", parentID))
	}

	r, ok := e.runners[parent.RunnerKind]
	if !ok {
		return errors.New(errors.ErrCodeSessionNoRunner,
			fmt.Sprintf("no runner for kind '%s'", parent.RunnerKind))
	}

	msgs, err := r.Run(ctx, runner.RunConfig{
		Prompt:          prompt,
		WorkingDir:      parent.Workspace.Path,
		ResumeSessionID: parent.RunnerSessionID,
	})
	if err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"parent": parentID,
		"child":  childID,
	}).Info("Resuming parent with child result")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for msg := range msgs {
			_ = e.manager.HandleMessage(ctx, parentID, msg)
		}
	}()
	return nil
}

// refreshTokenIfConfigured refreshes the repository's tracker token
// ahead of a session. Failures are logged, not fatal; the tracker call
// itself will surface a real credential problem.
func (e *Engine) refreshTokenIfConfigured(ctx context.Context, repo *config.RepositoryConfig) {
	if e.refresher == nil || repo.TokenRefreshURL == "" {
		return
	}
	if _, err := e.refresher.RefreshToken(ctx, repo.ID); err != nil {
		e.logger.WithError(err).WithField("repository", repo.ID).Warn("Token refresh failed")
	}
}

// buildInitialPrompt composes the first prompt of a session from the
// issue context, the subroutine instruction, and the user's request.
func buildInitialPrompt(issue models.IssueMinimal, instruction, requestText string) string {
	var b strings.Builder
	if issue.Identifier != "" {
		fmt.Fprintf(&b, "Issue %s: %s\n\n", issue.Identifier, issue.Title)
	}
	b.WriteString(instruction)
	if requestText != "" {
		b.WriteString("\n\n## Request\n\n")
		b.WriteString(requestText)
	}
	return b.String()
}

// newSessionID returns a random session identifier.
func newSessionID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return "sess-" + hex.EncodeToString(buf)
}
