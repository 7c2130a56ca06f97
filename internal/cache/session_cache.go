// Package cache gives each chat session a private, index-addressable view of
// the emails it most recently fetched. Indices are 1-based in the external
// contract and stay valid after deletions: removed entries become tombstones
// (nil slots) instead of shifting later indices, because the agent may issue
// several index-based operations from one read_emails output.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mailmind/mailmind/internal/models"
)

var (
	// ErrIndexOutOfRange means the index is below 1 or beyond the session's list.
	ErrIndexOutOfRange = errors.New("email index out of range")
	// ErrAlreadyRemoved means the slot was tombstoned by an earlier delete or move.
	ErrAlreadyRemoved = errors.New("email has already been removed")
	// ErrNotFound means no live entry carries the requested UID.
	ErrNotFound = errors.New("email not found in session cache")
)

// snapshotEntry is the lightweight per-slot form persisted to disk. Full
// bodies are deliberately not stored; a snapshot can mark that a slot
// existed, never reconstruct it.
type snapshotEntry struct {
	UID     uint32   `json:"uid"`
	Subject string   `json:"subject"`
	From    string   `json:"from"`
	Date    string   `json:"date"`
	Flags   []string `json:"flags,omitempty"`
}

// SessionCache maps chat session ids to their last fetched email list.
// Partitioned by session id, so sessions never contend on each other's
// entries; the map itself is guarded by one mutex.
type SessionCache struct {
	mu       sync.Mutex
	sessions map[string][]*models.Email
	path     string // snapshot file; empty disables persistence
}

// New creates a SessionCache persisting snapshots to path. An empty path
// disables persistence (used in tests).
func New(path string) *SessionCache {
	return &SessionCache{
		sessions: make(map[string][]*models.Email),
		path:     path,
	}
}

// Load rehydrates sessions from the snapshot file. Recovered entries become
// tombstones: the snapshot holds metadata only, so the slots mark positions
// that existed before restart without pretending to hold live emails.
func (c *SessionCache) Load() error {
	if c.path == "" {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read session cache snapshot: %w", err)
	}

	var snapshot map[string][]*snapshotEntry
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to parse session cache snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for sessionID, entries := range snapshot {
		c.sessions[sessionID] = make([]*models.Email, len(entries))
	}
	log.Printf("SessionCache: loaded %d sessions from %s (entries rehydrated as stale)", len(snapshot), c.path)
	return nil
}

// Replace atomically replaces the session's list with the given emails.
// The previous list is discarded entirely; nothing is merged.
func (c *SessionCache) Replace(sessionID string, emails []*models.Email) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = append([]*models.Email(nil), emails...)
	c.persistLocked()
}

// Get returns a copy of the session's current list, creating an empty one
// if the session is unknown. Nil slots are tombstones.
func (c *SessionCache) Get(sessionID string) []*models.Email {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.sessions[sessionID]
	if !ok {
		c.sessions[sessionID] = nil
		return nil
	}
	return append([]*models.Email(nil), list...)
}

// Len returns the number of slots (including tombstones) for the session.
func (c *SessionCache) Len(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions[sessionID])
}

// ResolveIndex resolves a 1-based index to its email.
func (c *SessionCache) ResolveIndex(sessionID string, index int) (*models.Email, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.sessions[sessionID]
	if index < 1 || index > len(list) {
		return nil, fmt.Errorf("%w: index %d, valid range 1-%d", ErrIndexOutOfRange, index, len(list))
	}
	email := list[index-1]
	if email == nil {
		return nil, ErrAlreadyRemoved
	}
	return email, nil
}

// ResolveUID finds the live entry with the given UID, returning its 1-based
// index and the email. Tombstones are skipped.
func (c *SessionCache) ResolveUID(sessionID string, uid uint32) (int, *models.Email, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, email := range c.sessions[sessionID] {
		if email != nil && email.UID == uid {
			return i + 1, email, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: uid %d", ErrNotFound, uid)
}

// Tombstone marks the slot at the 1-based index as removed, in place.
// Subsequent indices are not shifted.
func (c *SessionCache) Tombstone(sessionID string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.sessions[sessionID]
	if index < 1 || index > len(list) {
		return fmt.Errorf("%w: index %d, valid range 1-%d", ErrIndexOutOfRange, index, len(list))
	}
	list[index-1] = nil
	c.persistLocked()
	return nil
}

// Clear removes the session entirely.
func (c *SessionCache) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[sessionID]; !ok {
		return
	}
	delete(c.sessions, sessionID)
	c.persistLocked()
}

// persistLocked writes the metadata snapshot to disk. Caller holds c.mu.
// Failures are logged, not propagated: persistence is best-effort crash
// recovery, and a write error must not fail the mail operation it rode on.
func (c *SessionCache) persistLocked() {
	if c.path == "" {
		return
	}

	snapshot := make(map[string][]*snapshotEntry, len(c.sessions))
	for sessionID, list := range c.sessions {
		entries := make([]*snapshotEntry, len(list))
		for i, email := range list {
			if email == nil {
				continue
			}
			entries[i] = &snapshotEntry{
				UID:     email.UID,
				Subject: email.Subject,
				From:    email.From.String(),
				Date:    email.Date.Format(time.RFC3339),
				Flags:   email.Flags,
			}
		}
		snapshot[sessionID] = entries
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		log.Printf("SessionCache: failed to serialize snapshot: %v", err)
		return
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		log.Printf("SessionCache: failed to write snapshot to %s: %v", c.path, err)
	}
}
