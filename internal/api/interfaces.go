package api

import (
	"context"

	"collabdocs/internal/collab"
	"collabdocs/internal/identity"
	"collabdocs/internal/models"
)

// Consumer-driven interfaces: this package declares exactly what it needs
// from the services it calls, nothing more.

// Documents is the document store surface used by the CRUD handlers.
type Documents interface {
	Create(ctx context.Context, ownerID, title string) (*models.Document, error)
	FindByID(ctx context.Context, id string) (*models.Document, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Document, error)
	Update(ctx context.Context, id string, update *models.DocumentUpdate) (*models.Document, error)
	Delete(ctx context.Context, id, ownerID string) error
	AddCollaborator(ctx context.Context, id, userID string) (*models.Document, error)
}

// Accounts is the identity service surface used by the auth handlers.
type Accounts interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, identity.Identity, error)
}

// Users resolves collaborator emails to accounts.
type Users interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Presence exposes the live roster for a document's room.
type Presence interface {
	PresenceSnapshot(documentID string) []collab.PresenceEntry
}
