package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "collabdocs/internal/errors"
	"collabdocs/internal/models"

	"gorm.io/gorm"
)

// DocumentRepositoryImpl handles all database operations for documents using
// GORM. Consumers (the API handlers and the collaboration hub) declare the
// interfaces they need; this type doesn't know about any of them.
type DocumentRepositoryImpl struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *gorm.DB) *DocumentRepositoryImpl {
	return &DocumentRepositoryImpl{db: db}
}

// Create inserts a new document owned by ownerID.
// The KSUID is auto-generated in the BeforeCreate hook.
func (r *DocumentRepositoryImpl) Create(ctx context.Context, ownerID, title string) (*models.Document, error) {
	document := &models.Document{
		Title:   title,
		OwnerID: ownerID,
		Content: json.RawMessage(`{}`),
	}

	if err := r.db.WithContext(ctx).Create(document).Error; err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	return document, nil
}

// FindByID retrieves a document by its KSUID.
func (r *DocumentRepositoryImpl) FindByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document

	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// ListForUser returns documents the user owns or collaborates on, newest
// first. KSUIDs are time-ordered, so sorting by ID sorts by creation time.
func (r *DocumentRepositoryImpl) ListForUser(ctx context.Context, userID string) ([]*models.Document, error) {
	var documents []*models.Document

	err := r.db.WithContext(ctx).
		Where("owner_id = ? OR ? = ANY(collaborator_ids)", userID, userID).
		Order("id DESC").
		Find(&documents).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	return documents, nil
}

// UpdateContent overwrites the stored content for a document. Last write
// wins; there is no optimistic locking against concurrent writers.
func (r *DocumentRepositoryImpl) UpdateContent(ctx context.Context, id string, content json.RawMessage) error {
	result := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Update("content", content)

	if result.Error != nil {
		return fmt.Errorf("failed to update document content: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrDocumentNotFound
	}

	return nil
}

// Update modifies title and/or content of an existing document.
func (r *DocumentRepositoryImpl) Update(ctx context.Context, id string, update *models.DocumentUpdate) (*models.Document, error) {
	var doc models.Document

	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}

	updates := make(map[string]interface{})
	if update.Title != nil {
		updates["title"] = *update.Title
	}
	if update.Content != nil {
		updates["content"] = update.Content
	}
	if len(updates) == 0 {
		return &doc, nil
	}

	if err := r.db.WithContext(ctx).Model(&doc).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	return &doc, nil
}

// Delete removes a document owned by ownerID. Deleting somebody else's
// document reports not-found rather than leaking its existence.
func (r *DocumentRepositoryImpl) Delete(ctx context.Context, id, ownerID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&models.Document{})

	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrDocumentNotFound
	}

	return nil
}

// AddCollaborator grants userID access to the document. Adding an existing
// collaborator is a no-op.
func (r *DocumentRepositoryImpl) AddCollaborator(ctx context.Context, id, userID string) (*models.Document, error) {
	var doc models.Document

	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}

	if doc.HasAccess(userID) {
		return &doc, nil
	}

	doc.CollaboratorIDs = append(doc.CollaboratorIDs, userID)
	if err := r.db.WithContext(ctx).Model(&doc).Update("collaborator_ids", doc.CollaboratorIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to add collaborator: %w", err)
	}

	return &doc, nil
}
