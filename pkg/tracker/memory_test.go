package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, m *MemoryTracker, sessionID, body string, ephemeral bool) *Activity {
	t.Helper()
	result, err := m.CreateAgentActivity(context.Background(), sessionID,
		ActivityContent{Type: ActivityThought, Body: body},
		CreateActivityOptions{Ephemeral: ephemeral})
	require.NoError(t, err)
	require.True(t, result.Success)
	return result.Activity
}

func TestEphemeralSupersession(t *testing.T) {
	m := NewMemoryTracker()

	post(t, m, "sess-1", "A", true)
	post(t, m, "sess-1", "B", true)
	c := post(t, m, "sess-1", "C", false)

	visible := m.VisibleActivities("sess-1")
	require.Len(t, visible, 1)
	assert.Equal(t, c.ID, visible[0].ID)
	assert.Equal(t, "C", visible[0].Content.Body)

	// The full log still holds everything.
	assert.Len(t, m.Activities("sess-1"), 3)
}

func TestEphemeralTailStaysVisible(t *testing.T) {
	m := NewMemoryTracker()

	a := post(t, m, "sess-1", "A", true)
	visible := m.VisibleActivities("sess-1")
	require.Len(t, visible, 1)
	assert.Equal(t, a.ID, visible[0].ID)

	// A later activity supersedes it, even an ephemeral one.
	b := post(t, m, "sess-1", "B", true)
	visible = m.VisibleActivities("sess-1")
	require.Len(t, visible, 1)
	assert.Equal(t, b.ID, visible[0].ID)
}

func TestSessionsAreIndependent(t *testing.T) {
	m := NewMemoryTracker()

	post(t, m, "sess-1", "A", true)
	post(t, m, "sess-2", "B", false)

	assert.Len(t, m.VisibleActivities("sess-1"), 1)
	assert.Len(t, m.VisibleActivities("sess-2"), 1)
	assert.Empty(t, m.VisibleActivities("sess-3"))
}

func TestSubscribeReceivesActivities(t *testing.T) {
	m := NewMemoryTracker()
	ch, cancel := m.Subscribe()
	defer cancel()

	posted := post(t, m, "sess-1", "hello", false)

	got := <-ch
	assert.Equal(t, posted.ID, got.ID)
}
