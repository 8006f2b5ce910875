package models

// SerializedState is the persistable form of the session registry:
// the session map plus the entry log, minus any live runner handles.
// Restoring is a pure merge into fresh maps.
type SerializedState struct {
	Sessions map[string]*Session        `json:"sessions"`
	Entries  map[string][]*SessionEntry `json:"entries"`
}
