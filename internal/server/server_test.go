package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/bridge/config"
	"github.com/grovetools/bridge/internal/engine"
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

// scriptedRunner replays a fixed message sequence for every run.
type scriptedRunner struct {
	mu     sync.Mutex
	script []protocol.Message
}

func (r *scriptedRunner) Kind() models.RunnerKind { return models.RunnerClaude }

func (r *scriptedRunner) Formatter() runner.Formatter { return runner.NewClaudeFormatter() }

func (r *scriptedRunner) Run(_ context.Context, _ runner.RunConfig) (<-chan protocol.Message, error) {
	r.mu.Lock()
	script := append([]protocol.Message(nil), r.script...)
	r.mu.Unlock()

	ch := make(chan protocol.Message, len(script))
	for _, msg := range script {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

type fixedClassifier struct{ label string }

func (c fixedClassifier) Classify(_ context.Context, _, _ string) (string, error) {
	return c.label, nil
}

type serverEnv struct {
	server    *Server
	ts        *httptest.Server
	tracker   *tracker.MemoryTracker
	approvals *approval.Broker
	repo      string
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	testutil.RequireGit(t)

	cfg := &config.Config{
		Repositories: []config.RepositoryConfig{
			{ID: "scratch", Path: t.TempDir()},
		},
	}
	cfg.SetDefaults()

	mem := tracker.NewMemoryTracker()
	catalog := procedure.NewCatalog()
	broker := approval.NewBroker(time.Minute)
	workspaces := workspace.NewManager(t.TempDir())
	fake := &scriptedRunner{script: []protocol.Message{
		{
			Type: protocol.MessageSystem,
			System: &protocol.SystemPayload{
				Subtype:         protocol.SystemInit,
				RunnerSessionID: "run-1",
				Model:           "opus",
			},
		},
		{
			Type: protocol.MessageResult,
			Result: &protocol.ResultPayload{
				Subtype: protocol.ResultSuccess,
				Text:    "the answer",
			},
		},
	}}

	eng := engine.New(engine.Config{
		Tracker:       mem,
		Catalog:       catalog,
		Router:        procedure.NewRouter(fixedClassifier{label: "question"}, catalog),
		Workspaces:    workspaces,
		Approvals:     broker,
		Runners:       map[models.RunnerKind]runner.Runner{models.RunnerClaude: fake},
		DefaultRunner: models.RunnerClaude,
		BaseURL:       cfg.Settings.BaseURL,
	})

	srv := New(cfg, eng, mem, broker, workspaces)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &serverEnv{server: srv, ts: ts, tracker: mem, approvals: broker, repo: "scratch"}
}

func (env *serverEnv) createSession(t *testing.T) string {
	t.Helper()
	body := map[string]interface{}{
		"repository": env.repo,
		"issue": map[string]string{
			"id":         "issue-1",
			"identifier": "ENG-1",
			"title":      "How does auth work?",
		},
		"request": "How does auth work?",
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(env.ts.URL+"/api/requests", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created["session"])
	return created["session"]
}

func TestHealth(t *testing.T) {
	env := newServerEnv(t)
	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateRequestAndFetchSession(t *testing.T) {
	env := newServerEnv(t)
	sessionID := env.createSession(t)

	require.Eventually(t, func() bool {
		resp, err := http.Get(env.ts.URL + "/api/sessions/" + sessionID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var view struct {
			Status models.SessionStatus `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
			return false
		}
		return view.Status == models.StatusComplete
	}, 2*time.Second, 20*time.Millisecond)

	// The session shows up in the listing too.
	resp, err := http.Get(env.ts.URL + "/api/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	var views []struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, sessionID, views[0].SessionID)

	// Activities include the final response.
	actResp, err := http.Get(env.ts.URL + "/api/sessions/" + sessionID + "/activities")
	require.NoError(t, err)
	defer actResp.Body.Close()
	var activities []struct {
		Content tracker.ActivityContent `json:"content"`
	}
	require.NoError(t, json.NewDecoder(actResp.Body).Decode(&activities))
	var sawResponse bool
	for _, a := range activities {
		if a.Content.Type == tracker.ActivityResponse && a.Content.Body == "the answer" {
			sawResponse = true
		}
	}
	assert.True(t, sawResponse)
}

func TestCreateRequestUnknownRepository(t *testing.T) {
	env := newServerEnv(t)
	payload := []byte(`{"repository":"nope","issue":{"id":"x"},"request":"hello"}`)
	resp, err := http.Post(env.ts.URL+"/api/requests", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionNotFound(t *testing.T) {
	env := newServerEnv(t)
	resp, err := http.Get(env.ts.URL + "/api/sessions/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApprovalGetAndResolve(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.approvals.Register("sess-a"))

	resp, err := http.Get(env.ts.URL + "/approval/sess-a")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status struct {
		Pending bool `json:"pending"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Pending)

	type waitResult struct {
		decision approval.Decision
		err      error
	}
	done := make(chan waitResult, 1)
	go func() {
		d, err := env.approvals.Wait(context.Background(), "sess-a")
		done <- waitResult{d, err}
	}()

	payload := []byte(`{"approved":true,"feedback":"ship it"}`)
	postResp, err := http.Post(env.ts.URL+"/approval/sess-a", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer postResp.Body.Close()
	assert.Equal(t, http.StatusOK, postResp.StatusCode)

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.True(t, out.decision.Approved)
		assert.Equal(t, "ship it", out.decision.Feedback)
	case <-time.After(2 * time.Second):
		t.Fatal("approval wait did not resolve")
	}
}

func TestApprovalNotFound(t *testing.T) {
	env := newServerEnv(t)
	payload := []byte(`{"approved":false}`)
	resp, err := http.Post(env.ts.URL+"/approval/missing", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfigEndpointReflectsReloads(t *testing.T) {
	env := newServerEnv(t)

	fetch := func() RunningConfig {
		resp, err := http.Get(env.ts.URL + "/api/config")
		require.NoError(t, err)
		defer resp.Body.Close()
		var cfg RunningConfig
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
		return cfg
	}

	cfg := fetch()
	assert.Equal(t, "claude", cfg.DefaultRunner)
	assert.Equal(t, 0, cfg.ConfigReloads)

	env.server.NotifyReload("bridge.yml")
	assert.Equal(t, 1, fetch().ConfigReloads)
}

func TestStreamDeliversActivities(t *testing.T) {
	env := newServerEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	first, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, ": connected"))

	_, err = env.tracker.CreateAgentActivity(context.Background(), "sess-s",
		tracker.ActivityContent{Type: tracker.ActivityThought, Body: "hello"},
		tracker.CreateActivityOptions{})
	require.NoError(t, err)

	var data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(strings.TrimSpace(line), "data: ")
			break
		}
	}
	var activity tracker.Activity
	require.NoError(t, json.Unmarshal([]byte(data), &activity))
	assert.Equal(t, "sess-s", activity.SessionID)
	assert.Equal(t, "hello", activity.Content.Body)
}

func TestConfigWatcherFiresOnChange(t *testing.T) {
	dir := t.TempDir()

	reloads := make(chan string, 4)
	watcher, err := NewConfigWatcher(dir, 10*time.Millisecond, func(file string) {
		reloads <- file
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Start(ctx)

	// Give the watch loop a beat to start before writing.
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "bridge.yml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\n"), 0644))

	select {
	case file := <-reloads:
		assert.Equal(t, "bridge.yml", file)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	// Non-config files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	select {
	case file := <-reloads:
		t.Fatalf("unexpected reload for %s", file)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestConfigWatcherIgnoresNonYAML(t *testing.T) {
	assert.True(t, isConfigFile("/etc/bridge/bridge.yml"))
	assert.True(t, isConfigFile("workflows.yaml"))
	assert.False(t, isConfigFile("bridge.json"))
	assert.False(t, isConfigFile("bridge.yml.swp"))
}
