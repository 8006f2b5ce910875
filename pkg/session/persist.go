package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/pkg/models"
)

// Serialize snapshots the session registry and entry log for
// persistence. Live runner handles are not serializable and are
// excluded; they are recreated when a session resumes.
func (m *Manager) Serialize() *models.SerializedState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := &models.SerializedState{
		Sessions: make(map[string]*models.Session, len(m.sessions)),
		Entries:  make(map[string][]*models.SessionEntry, len(m.entries)),
	}
	for sessionID, session := range m.sessions {
		state.Sessions[sessionID] = session.Clone()
	}
	for sessionID, entries := range m.entries {
		copied := make([]*models.SessionEntry, len(entries))
		for i, entry := range entries {
			dup := *entry
			copied[i] = &dup
		}
		state.Entries[sessionID] = copied
	}
	return state
}

// Restore replaces the registry with a serialized snapshot. A pure
// merge into fresh maps: existing state is discarded.
func (m *Manager) Restore(state *models.SerializedState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = make(map[string]*models.Session, len(state.Sessions))
	m.entries = make(map[string][]*models.SessionEntry, len(state.Entries))
	for sessionID, session := range state.Sessions {
		m.sessions[sessionID] = session
	}
	for sessionID, entries := range state.Entries {
		m.entries[sessionID] = entries
	}

	m.logger.WithField("sessions", len(m.sessions)).Info("Restored session state")
}

// SaveTo writes the serialized state as JSON under dir.
func (m *Manager) SaveTo(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create state directory").
			WithDetail("dir", dir)
	}

	data, err := json.MarshalIndent(m.Serialize(), "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal session state")
	}

	path := filepath.Join(dir, "sessions.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write session state").
			WithDetail("path", tmp)
	}
	return os.Rename(tmp, path)
}

// LoadFrom restores state previously written by SaveTo. A missing file
// is not an error; the bridge simply starts fresh.
func (m *Manager) LoadFrom(dir string) error {
	path := filepath.Join(dir, "sessions.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to read session state").
			WithDetail("path", path)
	}

	var state models.SerializedState
	if err := json.Unmarshal(data, &state); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to parse session state").
			WithDetail("path", path)
	}
	if state.Sessions == nil {
		state.Sessions = make(map[string]*models.Session)
	}
	if state.Entries == nil {
		state.Entries = make(map[string][]*models.SessionEntry)
	}

	m.Restore(&state)
	return nil
}
