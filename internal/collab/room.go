package collab

import (
	"sort"
	"sync"
)

// room is the set of sessions currently editing one document, and the unit
// of broadcast. Rooms are created lazily on first join and discarded as soon
// as the last member leaves.
//
// All membership reads and writes happen under mu, so a presence snapshot
// always reflects the membership set at the instant it is computed. The hub
// never holds its own lock while holding a room's.
type room struct {
	documentID string

	mu      sync.Mutex
	members map[string]*Session // connection ID -> session

	// closed marks a room that has been garbage-collected; a join that raced
	// the GC re-fetches a fresh room from the hub instead of using this one.
	closed bool

	// dirty is set when an edit has been relayed since the last save.
	dirty bool
}

func newRoom(documentID string) *room {
	return &room{
		documentID: documentID,
		members:    make(map[string]*Session),
	}
}

// presenceSnapshot returns the roster for the current membership set,
// de-duplicated by user (one entry per identity, however many connections
// that user holds) and sorted by user ID for a stable order.
// Callers must hold r.mu.
func (r *room) presenceSnapshot() []PresenceEntry {
	seen := make(map[string]bool, len(r.members))
	entries := make([]PresenceEntry, 0, len(r.members))

	for _, member := range r.members {
		id := member.identity
		if seen[id.UserID] {
			continue
		}
		seen[id.UserID] = true
		entries = append(entries, PresenceEntry{
			ID:       id.UserID,
			Username: id.Username,
			Email:    id.Email,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// broadcast queues msg to every member except the one with connection ID
// skipConnID (empty string skips nobody). Members whose outbound buffer is
// full are returned so the caller can disconnect them outside the lock.
// Callers must hold r.mu.
func (r *room) broadcast(msg []byte, skipConnID string) []*Session {
	var slow []*Session
	for connID, member := range r.members {
		if connID == skipConnID {
			continue
		}
		if !member.queue(msg) {
			slow = append(slow, member)
		}
	}
	return slow
}
