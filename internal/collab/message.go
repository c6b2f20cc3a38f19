package collab

import "encoding/json"

// MessageType identifies a frame in the collaboration protocol. The names
// mirror the events the editor client emits and listens for.
type MessageType string

const (
	// client -> server
	TypeJoinDocument MessageType = "join-document"
	TypeSendChanges  MessageType = "send-changes"
	TypeCursorMove   MessageType = "cursor-move"
	TypeSaveDocument MessageType = "save-document"

	// server -> client
	TypeLoadDocument    MessageType = "load-document"
	TypeReceiveChanges  MessageType = "receive-changes"
	TypeReceiveCursor   MessageType = "receive-cursor"
	TypeUsersInDocument MessageType = "users-in-document"
	TypeError           MessageType = "error"
)

// Envelope is the wire frame. Payload is opaque to the envelope and decoded
// per message type; edit deltas pass through the server without being parsed
// at all.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload asks to join a document room.
type JoinPayload struct {
	DocumentID string `json:"documentId"`
}

// LoadDocumentPayload is sent once, immediately after a successful join.
type LoadDocumentPayload struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content"`
}

// ErrorPayload is sent in lieu of load-document on join failure, or on any
// request the session wasn't allowed to make.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Cursor is a transient selection range within the document. It is never
// persisted; each update from a user supersedes their previous one.
type Cursor struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

// CursorUpdate is a cursor move tagged with the originating identity.
type CursorUpdate struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Cursor   Cursor `json:"cursor"`
}

// PresenceEntry is one row of the live roster sent with users-in-document.
type PresenceEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func encode(t MessageType, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

func encodeRaw(t MessageType, payload json.RawMessage) ([]byte, error) {
	return json.Marshal(Envelope{Type: t, Payload: payload})
}

func encodeError(message string) []byte {
	msg, _ := encode(TypeError, ErrorPayload{Message: message})
	return msg
}
