package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// Document is a shared rich-text document. Content holds the editor's delta
// document as raw JSON; the server never interprets it beyond storing and
// replaying it to joining clients.
//
// IDs are KSUIDs: time-ordered, so sorting by ID is sorting by creation time,
// and they index better than random UUIDs.
type Document struct {
	ID              string          `json:"id" gorm:"type:char(27);primaryKey"`
	Title           string          `json:"title" gorm:"type:text;not null;default:'Untitled Document'"`
	Content         json.RawMessage `json:"content" gorm:"type:jsonb;not null;default:'{}'"`
	OwnerID         string          `json:"owner_id" gorm:"type:char(36);not null;index"`
	CollaboratorIDs pq.StringArray  `json:"collaborator_ids" gorm:"type:text[]"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate hook generates a KSUID before inserting
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = ksuid.New().String()
	}
	return nil
}

// HasAccess reports whether userID may view and edit this document.
// Access is granted to the owner and to listed collaborators, nobody else.
func (d *Document) HasAccess(userID string) bool {
	if d.OwnerID == userID {
		return true
	}
	for _, id := range d.CollaboratorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type DocumentCreate struct {
	Title string `json:"title"`
}

type DocumentUpdate struct {
	Title   *string         `json:"title,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}
