package collab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDocumentID(t *testing.T) {
	assert.Equal(t, "doc-1", decodeDocumentID(json.RawMessage(`{"documentId":"doc-1"}`)))
	assert.Equal(t, "doc-1", decodeDocumentID(json.RawMessage(`"doc-1"`)))
	assert.Equal(t, "", decodeDocumentID(json.RawMessage(`{}`)))
	assert.Equal(t, "", decodeDocumentID(json.RawMessage(`42`)))
}

func TestEncodeRawPassesDeltaThroughVerbatim(t *testing.T) {
	delta := json.RawMessage(`{"ops":[{"retain":3},{"insert":"x"}]}`)
	raw, err := encodeRaw(TypeReceiveChanges, delta)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, TypeReceiveChanges, env.Type)
	assert.JSONEq(t, string(delta), string(env.Payload))
}

func TestEncodeError(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal(encodeError("Access denied"), &env))
	assert.Equal(t, TypeError, env.Type)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "Access denied", payload.Message)
}
