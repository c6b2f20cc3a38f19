package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "collabdocs/internal/errors"
	"collabdocs/internal/middleware"
	"collabdocs/internal/models"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Handler carries the dependencies for all REST endpoints.
type Handler struct {
	documents Documents
	accounts  Accounts
	users     Users
	presence  Presence
	log       zerolog.Logger
}

func NewHandler(documents Documents, accounts Accounts, users Users, presence Presence, log zerolog.Logger) *Handler {
	return &Handler{
		documents: documents,
		accounts:  accounts,
		users:     users,
		presence:  presence,
		log:       log.With().Str("component", "api").Logger(),
	}
}

// Register creates a new account.
// POST /auth/register {username, email, password}
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Username, req.Email, req.Password)
	if errors.Is(err, apperrors.ErrEmailTaken) {
		respondError(w, http.StatusBadRequest, "User already exists")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{"user": user})
}

// Login verifies credentials and returns a bearer token.
// POST /auth/login {email, password}
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	token, id, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, apperrors.ErrInvalidLogin) {
		respondError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"user": id, "token": token})
}

// Me returns the authenticated caller's identity.
// GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"user": id})
}

// CreateDocument creates a document owned by the caller.
// POST /api/documents {title}
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())

	var req models.DocumentCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "Title is required")
		return
	}

	doc, err := h.documents.Create(r.Context(), id.UserID, req.Title)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{"document": doc})
}

// ListDocuments returns documents the caller owns or collaborates on.
// GET /api/documents
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())

	docs, err := h.documents.ListForUser(r.Context(), id.UserID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// GetDocument fetches a single document the caller has access to.
// GET /api/documents/{id}
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.authorizedDocument(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"document": doc})
}

// UpdateDocument updates title and/or content.
// PUT /api/documents/{id} {title?, content?}
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.authorizedDocument(w, r)
	if !ok {
		return
	}

	var req models.DocumentUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.documents.Update(r.Context(), doc.ID, &req)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"document": updated})
}

// DeleteDocument removes a document. Owner only.
// DELETE /api/documents/{id}
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	docID := mux.Vars(r)["id"]

	err := h.documents.Delete(r.Context(), docID, id.UserID)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"message": "Document deleted successfully"})
}

// AddCollaborator grants another account access by email. Owner only.
// POST /api/documents/{id}/collaborators {email}
func (h *Handler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	docID := mux.Vars(r)["id"]

	doc, err := h.documents.FindByID(r.Context(), docID)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if doc.OwnerID != id.UserID {
		respondError(w, http.StatusForbidden, "Only the owner can add collaborators")
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		respondError(w, http.StatusBadRequest, "Email is required")
		return
	}

	user, err := h.users.FindByEmail(r.Context(), req.Email)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	updated, err := h.documents.AddCollaborator(r.Context(), docID, user.ID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"document": updated})
}

// DocumentPresence returns the live roster for a document's room.
// GET /api/documents/{id}/presence
func (h *Handler) DocumentPresence(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.authorizedDocument(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"users": h.presence.PresenceSnapshot(doc.ID)})
}

// authorizedDocument loads the document from the path and enforces the
// owner-or-collaborator rule, writing the error response itself on failure.
func (h *Handler) authorizedDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	id, _ := middleware.IdentityFromContext(r.Context())
	docID := mux.Vars(r)["id"]

	doc, err := h.documents.FindByID(r.Context(), docID)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		respondError(w, http.StatusNotFound, "Document not found")
		return nil, false
	}
	if err != nil {
		h.internalError(w, r, err)
		return nil, false
	}
	if !doc.HasAccess(id.UserID) {
		respondError(w, http.StatusForbidden, "Access denied")
		return nil, false
	}

	return doc, true
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	middleware.AddSpanError(r.Context(), err)
	h.log.Error().Err(err).
		Str("request_id", middleware.RequestID(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
	respondError(w, http.StatusInternalServerError, "Internal server error")
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}
