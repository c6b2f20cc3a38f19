package models

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestDocumentHasAccess(t *testing.T) {
	doc := Document{
		ID:              "doc-1",
		OwnerID:         "owner",
		CollaboratorIDs: pq.StringArray{"friend", "colleague"},
	}

	assert.True(t, doc.HasAccess("owner"))
	assert.True(t, doc.HasAccess("friend"))
	assert.True(t, doc.HasAccess("colleague"))
	assert.False(t, doc.HasAccess("stranger"))
	assert.False(t, doc.HasAccess(""))
}
