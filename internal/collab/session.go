package collab

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	apperrors "collabdocs/internal/errors"
	"collabdocs/internal/identity"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBufferSize = 256
)

// State is a session's position in its lifecycle. A connection that fails
// authentication is refused before a Session value is ever created, so
// StateConnecting and StateRejected never appear on a live Session; they are
// listed for completeness of the machine.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateDisconnected
	StateRejected
)

// Session is the per-connection state machine. It is owned by its connection:
// the read pump is the only goroutine driving transitions, while the hub may
// concurrently detach it from a room (slow consumer, shutdown), so room and
// state live behind mu.
type Session struct {
	connID   string
	identity identity.Identity

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	hub *Hub
	log zerolog.Logger

	mu         sync.Mutex
	state      State
	room       *room
	lastCursor *Cursor
}

func newSession(hub *Hub, conn *websocket.Conn, id identity.Identity, log zerolog.Logger) *Session {
	connID := ksuid.New().String()
	return &Session{
		connID:   connID,
		identity: id,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		hub:      hub,
		state:    StateAuthenticated,
		log: log.With().
			Str("conn_id", connID).
			Str("user_id", id.UserID).
			Logger(),
	}
}

// Identity returns the identity bound to this session at handshake time.
func (s *Session) Identity() identity.Identity { return s.identity }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) currentRoom() *room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// attachRoom binds the session to r. Callers must have detached any previous
// room first; a session is in at most one room at a time.
func (s *Session) attachRoom(r *room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = r
	if s.state == StateAuthenticated {
		s.state = StateJoined
	}
}

// detachRoom clears the session's room binding and returns the old room, or
// nil if it wasn't joined. Idempotent.
func (s *Session) detachRoom() *room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.room
	s.room = nil
	s.lastCursor = nil
	if s.state == StateJoined {
		s.state = StateAuthenticated
	}
	return r
}

// queue hands msg to the write pump without blocking. It reports false when
// the outbound buffer is full, which the hub treats as a dead or stalled
// connection. Messages for a closing session are dropped quietly.
func (s *Session) queue(msg []byte) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// close marks the session disconnected and stops the write pump. Safe to
// call more than once; only the first call has any effect.
func (s *Session) close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// ReadPump reads frames from the connection and dispatches them in arrival
// order, so each sender's deltas are relayed in the order they were sent.
// It exits on any read error, which is also how disconnects surface.
func (s *Session) ReadPump() {
	defer func() {
		s.hub.Disconnect(s)
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.queue(encodeError("Malformed message"))
			continue
		}

		s.dispatch(context.Background(), env)
	}
}

func (s *Session) dispatch(ctx context.Context, env Envelope) {
	switch env.Type {
	case TypeJoinDocument:
		documentID := decodeDocumentID(env.Payload)
		if documentID == "" {
			s.queue(encodeError("Malformed message"))
			return
		}
		if err := s.hub.Join(ctx, s, documentID); err != nil {
			s.queue(encodeError(joinErrorMessage(err)))
		}

	case TypeSendChanges:
		if err := s.hub.RelayEdit(s, env.Payload); err != nil {
			s.queue(encodeError("Not joined to a document"))
		}

	case TypeCursorMove:
		var cursor Cursor
		if err := json.Unmarshal(env.Payload, &cursor); err != nil {
			s.queue(encodeError("Malformed message"))
			return
		}
		if err := s.hub.RelayCursor(s, cursor); err != nil {
			s.queue(encodeError("Not joined to a document"))
		}

	case TypeSaveDocument:
		if err := s.hub.SaveDocument(s, env.Payload); err != nil {
			s.queue(encodeError("Not joined to a document"))
		}

	default:
		s.log.Debug().Str("type", string(env.Type)).Msg("ignoring unknown message type")
	}
}

// decodeDocumentID accepts either {"documentId": "..."} or a bare JSON
// string; editor clients differ on which form they send.
func decodeDocumentID(payload json.RawMessage) string {
	var jp JoinPayload
	if err := json.Unmarshal(payload, &jp); err == nil && jp.DocumentID != "" {
		return jp.DocumentID
	}
	var id string
	if err := json.Unmarshal(payload, &id); err == nil {
		return id
	}
	return ""
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrDocumentNotFound):
		return "Document not found"
	case errors.Is(err, apperrors.ErrAccessDenied):
		return "Access denied"
	default:
		return "Failed to join document"
	}
}

// WritePump drains the outbound buffer onto the connection and keeps the
// connection alive with pings. One pump per session; having a single writer
// goroutine is what makes Session.queue safe from any goroutine.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
