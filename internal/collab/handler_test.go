package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "collabdocs/internal/errors"
	"collabdocs/internal/identity"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	tokens map[string]identity.Identity
}

func (f *fakeVerifier) Verify(ctx context.Context, credential string) (identity.Identity, error) {
	if credential == "" {
		return identity.Identity{}, apperrors.ErrNoCredential
	}
	id, ok := f.tokens[credential]
	if !ok {
		return identity.Identity{}, apperrors.ErrInvalidCredential
	}
	return id, nil
}

func newTestServer(t *testing.T, store *fakeStore) (*httptest.Server, *Hub) {
	t.Helper()

	log := zerolog.Nop()
	hub := NewHub(store, NewSaver(store, 0, log), log)
	verifier := &fakeVerifier{tokens: map[string]identity.Identity{
		"token-a": alice,
		"token-b": bob,
		"token-c": carol,
	}}

	r := mux.NewRouter()
	r.HandleFunc("/ws", NewHandler(hub, verifier, log).HandleConnection)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Shutdown)

	return srv, hub
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, mt MessageType, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Type: mt, Payload: raw}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func readPresence(t *testing.T, conn *websocket.Conn) []string {
	t.Helper()
	env := readEnvelope(t, conn)
	require.Equal(t, TypeUsersInDocument, env.Type)
	var entries []PresenceEntry
	require.NoError(t, json.Unmarshal(env.Payload, &entries))
	return presenceIDs(entries)
}

func readError(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	env := readEnvelope(t, conn)
	require.Equal(t, TypeError, env.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	return payload.Message
}

func TestHandshakeRejectsMissingCredential(t *testing.T) {
	srv, _ := newTestServer(t, newFakeStore())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeRejectsInvalidCredential(t *testing.T) {
	srv, _ := newTestServer(t, newFakeStore())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeAcceptsBearerHeader(t *testing.T) {
	srv, _ := newTestServer(t, newFakeStore(doc("doc-1", alice.UserID)))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Authorization": {"Bearer token-a"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestCollaborationFlow(t *testing.T) {
	store := newFakeStore(doc("doc-1", alice.UserID, bob.UserID))
	srv, _ := newTestServer(t, store)

	a := dialWS(t, srv, "token-a")
	// The join payload may be an object or a bare document ID string;
	// both client forms are accepted.
	writeEnvelope(t, a, TypeJoinDocument, "doc-1")

	load := readEnvelope(t, a)
	require.Equal(t, TypeLoadDocument, load.Type)
	var loaded LoadDocumentPayload
	require.NoError(t, json.Unmarshal(load.Payload, &loaded))
	assert.Equal(t, "doc-1", loaded.ID)
	assert.Equal(t, []string{alice.UserID}, readPresence(t, a))

	b := dialWS(t, srv, "token-b")
	writeEnvelope(t, b, TypeJoinDocument, JoinPayload{DocumentID: "doc-1"})

	require.Equal(t, TypeLoadDocument, readEnvelope(t, b).Type)
	assert.ElementsMatch(t, []string{alice.UserID, bob.UserID}, readPresence(t, b))
	assert.ElementsMatch(t, []string{alice.UserID, bob.UserID}, readPresence(t, a))

	// Edits relay to the other member only.
	delta := json.RawMessage(`{"ops":[{"insert":"Hello","at":0}]}`)
	writeEnvelope(t, a, TypeSendChanges, delta)
	env := readEnvelope(t, b)
	require.Equal(t, TypeReceiveChanges, env.Type)
	assert.JSONEq(t, string(delta), string(env.Payload))

	// Cursor updates arrive tagged with the sender's identity.
	writeEnvelope(t, b, TypeCursorMove, Cursor{Index: 5, Length: 0})
	env = readEnvelope(t, a)
	require.Equal(t, TypeReceiveCursor, env.Type)
	var cur CursorUpdate
	require.NoError(t, json.Unmarshal(env.Payload, &cur))
	assert.Equal(t, bob.UserID, cur.UserID)
	assert.Equal(t, Cursor{Index: 5, Length: 0}, cur.Cursor)

	// Saves reach the store.
	content := json.RawMessage(`{"ops":[{"insert":"Hello"}]}`)
	writeEnvelope(t, a, TypeSaveDocument, content)
	require.Eventually(t, func() bool {
		return len(store.savedContent("doc-1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Disconnect rebroadcasts presence to the survivor.
	b.Close()
	assert.Equal(t, []string{alice.UserID}, readPresence(t, a))
}

func TestJoinErrorsOverWire(t *testing.T) {
	store := newFakeStore(doc("doc-1", alice.UserID))
	srv, hub := newTestServer(t, store)

	c := dialWS(t, srv, "token-c")

	writeEnvelope(t, c, TypeJoinDocument, "missing")
	assert.Equal(t, "Document not found", readError(t, c))

	writeEnvelope(t, c, TypeJoinDocument, "doc-1")
	assert.Equal(t, "Access denied", readError(t, c))

	// Failed joins leave no membership behind.
	assert.Empty(t, hub.PresenceSnapshot("doc-1"))
}

func TestRelayBeforeJoinIsRejected(t *testing.T) {
	srv, _ := newTestServer(t, newFakeStore(doc("doc-1", alice.UserID)))

	a := dialWS(t, srv, "token-a")
	writeEnvelope(t, a, TypeSendChanges, json.RawMessage(`{"ops":[]}`))
	assert.Equal(t, "Not joined to a document", readError(t, a))
}
