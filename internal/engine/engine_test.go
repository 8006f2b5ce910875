package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/bridge/config"
	"github.com/grovetools/bridge/pkg/approval"
	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/procedure"
	"github.com/grovetools/bridge/pkg/protocol"
	"github.com/grovetools/bridge/pkg/runner"
	"github.com/grovetools/bridge/pkg/tracker"
	"github.com/grovetools/bridge/pkg/workspace"
	"github.com/grovetools/bridge/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner replays a fixed message sequence for every run and
// records the configs it was launched with.
type scriptedRunner struct {
	mu      sync.Mutex
	kind    models.RunnerKind
	script  []protocol.Message
	configs []runner.RunConfig
}

func (r *scriptedRunner) Kind() models.RunnerKind { return r.kind }

func (r *scriptedRunner) Formatter() runner.Formatter { return runner.NewClaudeFormatter() }

func (r *scriptedRunner) Run(_ context.Context, cfg runner.RunConfig) (<-chan protocol.Message, error) {
	r.mu.Lock()
	r.configs = append(r.configs, cfg)
	script := append([]protocol.Message(nil), r.script...)
	r.mu.Unlock()

	ch := make(chan protocol.Message, len(script))
	for _, msg := range script {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

func (r *scriptedRunner) runConfigs() []runner.RunConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runner.RunConfig(nil), r.configs...)
}

// fixedClassifier always returns the same label.
type fixedClassifier struct{ label string }

func (c fixedClassifier) Classify(_ context.Context, _, _ string) (string, error) {
	return c.label, nil
}

func successScript(runnerSessionID, resultText string) []protocol.Message {
	return []protocol.Message{
		{
			Type: protocol.MessageSystem,
			System: &protocol.SystemPayload{
				Subtype:         protocol.SystemInit,
				RunnerSessionID: runnerSessionID,
				Model:           "opus",
			},
		},
		{
			Type: protocol.MessageResult,
			Result: &protocol.ResultPayload{
				Subtype: protocol.ResultSuccess,
				Text:    resultText,
			},
		},
	}
}

func newWorkspaceManager(t *testing.T) *workspace.Manager {
	t.Helper()
	return workspace.NewManager(t.TempDir())
}

func newTestEngine(t *testing.T, label string, script []protocol.Message) (*Engine, *scriptedRunner, *tracker.MemoryTracker) {
	t.Helper()
	mem := tracker.NewMemoryTracker()
	catalog := procedure.NewCatalog()
	fake := &scriptedRunner{kind: models.RunnerClaude, script: script}

	e := New(Config{
		Tracker:       mem,
		Catalog:       catalog,
		Router:        procedure.NewRouter(fixedClassifier{label: label}, catalog),
		Workspaces:    newWorkspaceManager(t),
		Approvals:     approval.NewBroker(time.Minute),
		Runners:       map[models.RunnerKind]runner.Runner{models.RunnerClaude: fake},
		DefaultRunner: models.RunnerClaude,
		BaseURL:       "http://localhost:3456",
	})
	return e, fake, mem
}

func testRepo(t *testing.T) *config.RepositoryConfig {
	t.Helper()
	return &config.RepositoryConfig{
		ID:   "scratch",
		Path: t.TempDir(), // plain directory, no git metadata
	}
}

func TestHandleRequestRoutesAndRunsToCompletion(t *testing.T) {
	testutil.RequireGit(t)
	e, fake, mem := newTestEngine(t, "question", successScript("run-1", "the answer"))
	ctx := context.Background()

	issue := models.IssueMinimal{ID: "issue-1", Identifier: "ENG-1", Title: "How does auth work?"}
	sessionID, err := e.HandleRequest(ctx, testRepo(t), issue, "How does auth work?")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		sess, ok := e.Manager().Snapshot(sessionID)
		return ok && sess.Status == models.StatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	sess, _ := e.Manager().Snapshot(sessionID)
	assert.Equal(t, "answer-question", sess.Metadata.Procedure.ProcedureName)
	assert.Equal(t, "run-1", sess.RunnerSessionID)

	// Routing thoughts precede the final response.
	var sawSelection, sawResponse bool
	for _, a := range mem.Activities(sessionID) {
		if a.Content.Type == tracker.ActivityThought &&
			a.Content.Body == "Selected procedure: **answer-question** (classified as: question)" {
			sawSelection = true
		}
		if a.Content.Type == tracker.ActivityResponse && a.Content.Body == "the answer" {
			sawResponse = true
		}
	}
	assert.True(t, sawSelection)
	assert.True(t, sawResponse)

	// The answer subroutine runs single-turn with writes disallowed.
	configs := fake.runConfigs()
	require.Len(t, configs, 1)
	assert.True(t, configs[0].SingleTurn)
	assert.Contains(t, configs[0].DisallowedTools, "Write")
	assert.Contains(t, configs[0].Prompt, "Issue ENG-1")
	assert.Contains(t, configs[0].Prompt, "How does auth work?")
	assert.Empty(t, configs[0].ResumeSessionID)
}

func TestTransitionsDriveMultiStepProcedure(t *testing.T) {
	testutil.RequireGit(t)
	e, fake, _ := newTestEngine(t, "code", successScript("run-1", "step done"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Start(ctx)

	issue := models.IssueMinimal{ID: "issue-2", Identifier: "ENG-2", Title: "Fix the login issue"}
	sessionID, err := e.HandleRequest(ctx, testRepo(t), issue, "Fix the login issue")
	require.NoError(t, err)

	// full-development has four subroutines; every run in the script
	// succeeds, so the engine should walk all of them.
	require.Eventually(t, func() bool {
		return len(fake.runConfigs()) == 4
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		sess, ok := e.Manager().Snapshot(sessionID)
		return ok && sess.Status == models.StatusComplete &&
			len(sess.Metadata.Procedure.SubroutineHistory) == 3
	}, 3*time.Second, 10*time.Millisecond)

	configs := fake.runConfigs()
	// Follow-up subroutines resume the runner conversation.
	for _, cfg := range configs[1:] {
		assert.Equal(t, "run-1", cfg.ResumeSessionID)
	}
	// The final summarize subroutine is single-turn.
	assert.True(t, configs[3].SingleTurn)
}

func TestResumeSessionReroutesFresh(t *testing.T) {
	testutil.RequireGit(t)
	e, fake, _ := newTestEngine(t, "question", successScript("run-1", "answered"))
	ctx := context.Background()

	issue := models.IssueMinimal{ID: "issue-3", Identifier: "ENG-3", Title: "Question"}
	sessionID, err := e.HandleRequest(ctx, testRepo(t), issue, "first question")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		sess, ok := e.Manager().Snapshot(sessionID)
		return ok && sess.Status == models.StatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.ResumeSession(ctx, sessionID, "follow-up question"))

	require.Eventually(t, func() bool {
		return len(fake.runConfigs()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	sess, _ := e.Manager().Snapshot(sessionID)
	// Re-routing resets the cursor rather than continuing the old
	// procedure.
	assert.Equal(t, 0, sess.Metadata.Procedure.CurrentSubroutineIndex)
	assert.Empty(t, sess.Metadata.Procedure.SubroutineHistory)
}

func TestResumeSessionUnknownID(t *testing.T) {
	testutil.RequireGit(t)
	e, _, _ := newTestEngine(t, "question", nil)
	err := e.ResumeSession(context.Background(), "nope", "hello")
	require.Error(t, err)
}

func TestSpawnChildRelaysResultToParent(t *testing.T) {
	testutil.RequireGit(t)
	e, fake, _ := newTestEngine(t, "question", successScript("run-parent", "parent answer"))
	ctx := context.Background()

	issue := models.IssueMinimal{ID: "issue-4", Identifier: "ENG-4", Title: "Parent"}
	parentID, err := e.HandleRequest(ctx, testRepo(t), issue, "parent request")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		sess, ok := e.Manager().Snapshot(parentID)
		return ok && sess.RunnerSessionID == "run-parent"
	}, 2*time.Second, 10*time.Millisecond)

	childIssue := models.IssueMinimal{ID: "issue-4-sub", Identifier: "ENG-4-SUB", Title: "Subtask"}
	childID, err := e.SpawnChild(ctx, parentID, childIssue, "do the subtask")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		child, ok := e.Manager().Snapshot(childID)
		return ok && child.Status == models.StatusComplete
	}, 2*time.Second, 10*time.Millisecond)

	// The child shares the parent's workspace and, on completion, the
	// parent's conversation is resumed with the child's result.
	child, _ := e.Manager().Snapshot(childID)
	parent, _ := e.Manager().Snapshot(parentID)
	assert.Equal(t, parent.Workspace, child.Workspace)

	require.Eventually(t, func() bool {
		for _, cfg := range fake.runConfigs() {
			if cfg.ResumeSessionID == "run-parent" &&
				len(cfg.Prompt) > 0 && cfg.Prompt != "parent request" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	var resumePrompt string
	for _, cfg := range fake.runConfigs() {
		if cfg.ResumeSessionID == "run-parent" {
			resumePrompt = cfg.Prompt
		}
	}
	assert.Contains(t, resumePrompt, childID)
	assert.Contains(t, resumePrompt, "parent answer")
}

func TestHandleRequestRejectsEmptyText(t *testing.T) {
	testutil.RequireGit(t)
	e, _, _ := newTestEngine(t, "question", nil)
	_, err := e.HandleRequest(context.Background(), testRepo(t), models.IssueMinimal{ID: "i"}, "   ")
	require.Error(t, err)
}
