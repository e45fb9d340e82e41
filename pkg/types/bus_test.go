package types_test

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	t.Run("Persistent variant", func(t *testing.T) {
		raw := []byte(`{"Persistent":{"topic_name":"SIFIS:AUD_Manager_Request","topic_uuid":"u-1","value":{"Request":"status","Port":5050}}}`)

		frame, err := types.DecodeFrame(raw)

		require.NoError(t, err)
		require.NotNil(t, frame.Persistent)
		assert.Nil(t, frame.RequestPost)
		assert.Equal(t, "SIFIS:AUD_Manager_Request", frame.Persistent.TopicName)
		assert.Equal(t, "u-1", frame.Persistent.TopicUUID)
		assert.Equal(t, "status", frame.Persistent.Value["Request"])
		assert.Equal(t, json.Number("5050"), frame.Persistent.Value["Port"])
	})

	t.Run("Other variant is not persistent", func(t *testing.T) {
		frame, err := types.DecodeFrame([]byte(`{"Volatile":{"value":{}}}`))

		require.NoError(t, err)
		assert.Nil(t, frame.Persistent)
	})

	t.Run("Malformed payload", func(t *testing.T) {
		_, err := types.DecodeFrame([]byte(`{"Persistent":`))
		assert.Error(t, err)
	})
}

func TestNewPublishFrame(t *testing.T) {
	// Arrange
	event := types.TopicEvent{
		TopicName: "SIFIS:AUD_Manager_Results",
		TopicUUID: "AUD_Manager_Results",
		Value:     map[string]any{"Request": "status"},
	}

	// Act
	data, err := types.NewPublishFrame(event)
	require.NoError(t, err)

	// Assert
	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Contains(t, decoded, types.RequestPostKey)
	assert.NotContains(t, decoded, types.PersistentKey)
	assert.Equal(t, "SIFIS:AUD_Manager_Results", decoded[types.RequestPostKey]["topic_name"])
	assert.Equal(t, "AUD_Manager_Results", decoded[types.RequestPostKey]["topic_uuid"])
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection refused")

	transport := error(&types.TransportError{Collaborator: "whisper", Err: cause})
	persistence := error(&types.PersistenceError{Op: "save watermark", Err: cause})

	assert.ErrorIs(t, transport, cause)
	assert.ErrorIs(t, persistence, cause)
	assert.Contains(t, transport.Error(), "whisper")

	var backendErr *types.BackendError
	err := error(&types.BackendError{Collaborator: "alarm_service", Status: 500, Body: "Internal Server Error"})
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, 500, backendErr.Status)
	assert.Contains(t, err.Error(), "Internal Server Error")
}
