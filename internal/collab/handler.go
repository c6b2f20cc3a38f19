package collab

import (
	"context"
	"net/http"

	"collabdocs/internal/identity"
	"collabdocs/internal/middleware"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CredentialVerifier resolves the handshake credential to an identity.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (identity.Identity, error)
}

// Handler upgrades HTTP connections into collaboration sessions.
type Handler struct {
	hub      *Hub
	verifier CredentialVerifier
	log      zerolog.Logger
}

func NewHandler(hub *Hub, verifier CredentialVerifier, log zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		log:      log.With().Str("component", "ws").Logger(),
	}
}

// HandleConnection authenticates the handshake credential and, on success,
// upgrades the connection and starts the session pumps. A connection that
// fails authentication is refused before any session state exists.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	id, err := h.verifier.Verify(r.Context(), middleware.BearerToken(r))
	if err != nil {
		h.log.Debug().Err(err).Msg("rejected websocket handshake")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := newSession(h.hub, conn, id, h.log)

	go s.WritePump()
	go s.ReadPump()

	h.log.Info().
		Str("conn_id", s.connID).
		Str("user_id", id.UserID).
		Msg("websocket connection established")
}
