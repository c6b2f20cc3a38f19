package api

import (
	"net/http"

	"collabdocs/internal/collab"
	"collabdocs/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// SetupRoutes builds the router: public auth endpoints, bearer-protected
// document endpoints and the websocket entry point (which authenticates its
// own handshake).
func SetupRoutes(h *Handler, ws *collab.Handler, verifier middleware.Verifier, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Tracing(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS)

	// Account endpoints
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", h.Register).Methods("POST")
	auth.HandleFunc("/login", h.Login).Methods("POST")

	me := auth.PathPrefix("/me").Subrouter()
	me.Use(middleware.RequireAuth(verifier))
	me.HandleFunc("", h.Me).Methods("GET")

	// Document endpoints
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	docs := api.PathPrefix("/documents").Subrouter()
	docs.Use(middleware.RequireAuth(verifier))
	docs.HandleFunc("", h.CreateDocument).Methods("POST")
	docs.HandleFunc("", h.ListDocuments).Methods("GET")
	docs.HandleFunc("/{id}", h.GetDocument).Methods("GET")
	docs.HandleFunc("/{id}", h.UpdateDocument).Methods("PUT")
	docs.HandleFunc("/{id}", h.DeleteDocument).Methods("DELETE")
	docs.HandleFunc("/{id}/collaborators", h.AddCollaborator).Methods("POST")
	docs.HandleFunc("/{id}/presence", h.DocumentPresence).Methods("GET")

	// Collaboration websocket
	r.HandleFunc("/ws", ws.HandleConnection)

	return r
}
