package collab

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const saveTimeout = 5 * time.Second

// Saver is the persistence scheduler. Saves are best-effort and last-write-
// wins: each scheduled save supersedes the pending one for that document,
// and a burst of saves within the debounce window produces a single store
// write carrying the most recent content. A zero debounce writes through
// synchronously.
//
// Store failures are logged and recorded but never surface to room members
// or terminate a session.
type Saver struct {
	store    DocumentStore
	debounce time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[string]json.RawMessage
	timers  map[string]*time.Timer
	lastErr error
}

func NewSaver(store DocumentStore, debounce time.Duration, log zerolog.Logger) *Saver {
	return &Saver{
		store:    store,
		debounce: debounce,
		log:      log.With().Str("component", "saver").Logger(),
		pending:  make(map[string]json.RawMessage),
		timers:   make(map[string]*time.Timer),
	}
}

// Schedule records content as the latest snapshot for documentID and
// arranges for it to be written after the debounce window.
func (s *Saver) Schedule(documentID string, content json.RawMessage) {
	if s.debounce <= 0 {
		s.write(documentID, content)
		return
	}

	s.mu.Lock()
	s.pending[documentID] = content
	if _, armed := s.timers[documentID]; !armed {
		s.timers[documentID] = time.AfterFunc(s.debounce, func() {
			s.Flush(documentID)
		})
	}
	s.mu.Unlock()
}

// Flush writes any pending content for documentID immediately. Called when
// the debounce window elapses, when a room is garbage-collected and on
// shutdown. A flush with nothing pending is a no-op.
func (s *Saver) Flush(documentID string) {
	s.mu.Lock()
	content, ok := s.pending[documentID]
	if t := s.timers[documentID]; t != nil {
		t.Stop()
	}
	delete(s.pending, documentID)
	delete(s.timers, documentID)
	s.mu.Unlock()

	if ok {
		s.write(documentID, content)
	}
}

// Close flushes every pending save.
func (s *Saver) Close() {
	s.mu.Lock()
	remaining := make(map[string]json.RawMessage, len(s.pending))
	for id, content := range s.pending {
		remaining[id] = content
	}
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.pending = make(map[string]json.RawMessage)
	s.mu.Unlock()

	for id, content := range remaining {
		s.write(id, content)
	}
}

// LastError returns the most recent store failure, if any. Persistence is
// best-effort; this exists so failures stay observable.
func (s *Saver) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Saver) write(documentID string, content json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.store.UpdateContent(ctx, documentID, content); err != nil {
		s.log.Error().Err(err).Str("document_id", documentID).Msg("failed to persist document")
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return
	}

	s.log.Debug().Str("document_id", documentID).Msg("document persisted")
}
