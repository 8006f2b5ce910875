package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/grovetools/bridge/logging"
	"github.com/sirupsen/logrus"
)

// MemoryTracker is the in-memory tracker adapter used by the CLI and by
// tests. It stores activities per session and resolves ephemeral
// supersession on read. Subscribers receive every created activity for
// live feeds.
type MemoryTracker struct {
	mu          sync.RWMutex
	activities  map[string][]*Activity
	counter     int
	subscribers map[chan *Activity]struct{}
	logger      *logrus.Entry
}

// NewMemoryTracker returns an empty in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		activities:  make(map[string][]*Activity),
		subscribers: make(map[chan *Activity]struct{}),
		logger:      logging.NewLogger("tracker"),
	}
}

// CreateAgentActivity appends an activity to a session's feed.
func (m *MemoryTracker) CreateAgentActivity(_ context.Context, sessionID string, content ActivityContent, opts CreateActivityOptions) (*CreateActivityResult, error) {
	m.mu.Lock()
	m.counter++
	activity := &Activity{
		ID:        fmt.Sprintf("activity-%d", m.counter),
		SessionID: sessionID,
		Content:   content,
		Ephemeral: opts.Ephemeral,
	}
	m.activities[sessionID] = append(m.activities[sessionID], activity)
	subs := make([]chan *Activity, 0, len(m.subscribers))
	for ch := range m.subscribers {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- activity:
		default:
			// A slow feed consumer must not block activity creation.
		}
	}

	m.logger.WithFields(logrus.Fields{
		"session":  sessionID,
		"type":     content.Type,
		"activity": activity.ID,
	}).Debug("Created activity")

	return &CreateActivityResult{Success: true, Activity: activity}, nil
}

// Activities returns every activity for a session in creation order.
func (m *MemoryTracker) Activities(sessionID string) []*Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Activity(nil), m.activities[sessionID]...)
}

// VisibleActivities returns a session's activities with ephemeral
// supersession applied: an ephemeral activity is hidden when any
// activity with a larger index exists. Supersession is anchored to list
// position, not timestamps, which may tie.
func (m *MemoryTracker) VisibleActivities(sessionID string) []*Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.activities[sessionID]
	visible := make([]*Activity, 0, len(all))
	for i, activity := range all {
		if activity.Ephemeral && i < len(all)-1 {
			continue
		}
		visible = append(visible, activity)
	}
	return visible
}

// Subscribe registers a feed channel receiving every created activity.
// The returned cancel func removes the subscription.
func (m *MemoryTracker) Subscribe() (<-chan *Activity, func()) {
	ch := make(chan *Activity, 64)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subscribers, ch)
		m.mu.Unlock()
	}
	return ch, cancel
}
