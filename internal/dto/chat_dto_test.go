package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTurnRequestWireNames(t *testing.T) {
	var req SendTurnRequest
	raw := []byte(`{"message":"hi","use_rag":false,"use_tools":true,"max_tokens":256}`)
	require.NoError(t, json.Unmarshal(raw, &req))

	require.NotNil(t, req.UseRetrieval)
	assert.False(t, *req.UseRetrieval)
	require.NotNil(t, req.UseTools)
	assert.True(t, *req.UseTools)
	assert.Equal(t, 256, req.MaxTokens)

	// Omitted flags stay nil so platform defaults can apply.
	var bare SendTurnRequest
	require.NoError(t, json.Unmarshal([]byte(`{"message":"hi"}`), &bare))
	assert.Nil(t, bare.UseRetrieval)
	assert.Nil(t, bare.UseTools)
}
