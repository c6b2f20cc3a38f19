package collab

import (
	"context"
	"encoding/json"
	"sync"

	apperrors "collabdocs/internal/errors"
	"collabdocs/internal/middleware"
	"collabdocs/internal/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// DocumentStore declares what the hub needs from document persistence.
type DocumentStore interface {
	FindByID(ctx context.Context, id string) (*models.Document, error)
	UpdateContent(ctx context.Context, id string, content json.RawMessage) error
}

// Hub is the room registry: it maps document IDs to rooms and serializes all
// membership changes, relays and presence computation per room. It is an
// explicit service object created at server start and torn down at shutdown,
// not a package-level singleton.
//
// The relay forwards deltas verbatim and guarantees per-sender FIFO delivery
// only. It performs no transformation or merging, so concurrent overlapping
// edits from two senders may diverge across clients; convergence is the
// editor's problem, not the relay's.
type Hub struct {
	store DocumentStore
	saver *Saver
	log   zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub(store DocumentStore, saver *Saver, log zerolog.Logger) *Hub {
	return &Hub{
		store: store,
		saver: saver,
		log:   log.With().Str("component", "hub").Logger(),
		rooms: make(map[string]*room),
	}
}

// Join authorizes the session against the document's owner and collaborator
// list, loads the current snapshot and registers the session in the room.
// The store lookup happens before any lock is taken; on failure nothing
// about room membership changes and the session keeps its previous state.
//
// A join while already joined replaces the prior membership: the session
// leaves its old room (with a presence rebroadcast there) and joins the new
// one.
func (h *Hub) Join(ctx context.Context, s *Session, documentID string) error {
	ctx, span := middleware.StartSpan(ctx, "Hub.Join",
		attribute.String("document.id", documentID),
		attribute.String("user.id", s.identity.UserID),
	)
	defer span.End()

	doc, err := h.store.FindByID(ctx, documentID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return err
	}
	if !doc.HasAccess(s.identity.UserID) {
		middleware.AddSpanError(ctx, apperrors.ErrAccessDenied)
		return apperrors.ErrAccessDenied
	}

	load, err := encode(TypeLoadDocument, LoadDocumentPayload{
		ID:      doc.ID,
		Title:   doc.Title,
		Content: doc.Content,
	})
	if err != nil {
		return err
	}

	// Authorized. If the session is already in a room, that membership is
	// replaced by the new one.
	if old := s.detachRoom(); old != nil {
		h.removeMember(old, s)
	}

	r := h.addMember(documentID, s, load)

	h.log.Info().
		Str("document_id", documentID).
		Str("user_id", s.identity.UserID).
		Int("members", h.memberCount(r)).
		Msg("session joined document")

	return nil
}

// Leave removes the session from its room, if any. Idempotent: leaving a
// session that already left (or never joined) does nothing, broadcasts
// nothing. When the last member leaves, the room is discarded and any
// pending save for its document is flushed.
func (h *Hub) Leave(s *Session) {
	r := s.detachRoom()
	if r == nil {
		return
	}
	h.removeMember(r, s)

	h.log.Info().
		Str("document_id", r.documentID).
		Str("user_id", s.identity.UserID).
		Msg("session left document")
}

// Disconnect tears a session down: leave the room, rebroadcast presence to
// the survivors and stop the pumps. This is the only teardown path; it is
// safe to call repeatedly and from any goroutine.
func (h *Hub) Disconnect(s *Session) {
	h.Leave(s)
	s.close()
}

// RelayEdit forwards a delta, unmodified, to every other member of the
// sender's room and marks the room dirty. A session that isn't joined gets
// ErrNotJoined and nothing is delivered anywhere.
func (h *Hub) RelayEdit(s *Session, delta json.RawMessage) error {
	r := s.currentRoom()
	if r == nil {
		return apperrors.ErrNotJoined
	}

	msg, err := encodeRaw(TypeReceiveChanges, delta)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, ok := r.members[s.connID]; !ok {
		r.mu.Unlock()
		return apperrors.ErrNotJoined
	}
	r.dirty = true
	slow := r.broadcast(msg, s.connID)
	r.mu.Unlock()

	h.dropSlow(slow)
	return nil
}

// RelayCursor forwards a cursor update, tagged with the sender's identity,
// to every other member of the sender's room. Receivers treat each update as
// superseding the sender's previous cursor state.
func (h *Hub) RelayCursor(s *Session, cursor Cursor) error {
	r := s.currentRoom()
	if r == nil {
		return apperrors.ErrNotJoined
	}

	msg, err := encode(TypeReceiveCursor, CursorUpdate{
		UserID:   s.identity.UserID,
		Username: s.identity.Username,
		Cursor:   cursor,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastCursor = &cursor
	s.mu.Unlock()

	r.mu.Lock()
	if _, ok := r.members[s.connID]; !ok {
		r.mu.Unlock()
		return apperrors.ErrNotJoined
	}
	slow := r.broadcast(msg, s.connID)
	r.mu.Unlock()

	h.dropSlow(slow)
	return nil
}

// SaveDocument hands the authoritative content snapshot to the persistence
// scheduler (last write wins) and clears the room's dirty flag. Store
// failures are the scheduler's to log; they never reach other members.
func (h *Hub) SaveDocument(s *Session, content json.RawMessage) error {
	r := s.currentRoom()
	if r == nil {
		return apperrors.ErrNotJoined
	}

	r.mu.Lock()
	r.dirty = false
	r.mu.Unlock()

	h.saver.Schedule(r.documentID, content)
	return nil
}

// PresenceSnapshot returns the current roster for a document's room, or an
// empty slice when no room exists. Pure read, no side effects.
func (h *Hub) PresenceSnapshot(documentID string) []PresenceEntry {
	h.mu.Lock()
	r := h.rooms[documentID]
	h.mu.Unlock()

	if r == nil {
		return []PresenceEntry{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presenceSnapshot()
}

// Shutdown disconnects every session in every room.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	var sessions []*Session
	for _, r := range h.rooms {
		r.mu.Lock()
		for _, member := range r.members {
			sessions = append(sessions, member)
		}
		r.mu.Unlock()
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.Disconnect(s)
	}
}

// addMember registers s under documentID, queues the load-document snapshot
// to the joiner and broadcasts the updated roster to the whole room. The
// load is queued while the room lock is held, so no relay can slip a
// receive-changes in front of it.
func (h *Hub) addMember(documentID string, s *Session, load []byte) *room {
	for {
		h.mu.Lock()
		r, ok := h.rooms[documentID]
		if !ok {
			r = newRoom(documentID)
			h.rooms[documentID] = r
		}
		h.mu.Unlock()

		r.mu.Lock()
		if r.closed {
			// Lost a race with the empty-room GC; fetch a fresh room.
			r.mu.Unlock()
			continue
		}

		r.members[s.connID] = s
		s.attachRoom(r)

		s.queue(load)
		presence, err := encode(TypeUsersInDocument, r.presenceSnapshot())
		var slow []*Session
		if err == nil {
			slow = r.broadcast(presence, "")
		}
		r.mu.Unlock()

		h.dropSlow(slow)
		return r
	}
}

// removeMember deletes s from r, rebroadcasts presence to the survivors and
// garbage-collects the room when it empties.
func (h *Hub) removeMember(r *room, s *Session) {
	r.mu.Lock()
	if _, ok := r.members[s.connID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.members, s.connID)

	var slow []*Session
	if len(r.members) == 0 {
		r.closed = true
	} else if presence, err := encode(TypeUsersInDocument, r.presenceSnapshot()); err == nil {
		slow = r.broadcast(presence, "")
	}
	closed := r.closed
	r.mu.Unlock()

	if closed {
		h.mu.Lock()
		if h.rooms[r.documentID] == r {
			delete(h.rooms, r.documentID)
		}
		h.mu.Unlock()
		h.saver.Flush(r.documentID)
	}

	h.dropSlow(slow)
}

// dropSlow disconnects members whose outbound buffer was full; a session
// that can't drain its buffer is treated as dead.
func (h *Hub) dropSlow(slow []*Session) {
	for _, s := range slow {
		h.log.Warn().
			Str("conn_id", s.connID).
			Str("user_id", s.identity.UserID).
			Msg("outbound buffer full, dropping connection")
		h.Disconnect(s)
	}
}

func (h *Hub) memberCount(r *room) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
