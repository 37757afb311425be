package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = original }()

	Log(context.Background(), Event{
		Type:         EventSessionCompleted,
		ActorID:      "elder-1",
		ConnectionID: "conn-1",
		SessionID:    "sess-1",
		Details: map[string]interface{}{
			"durationMinutes": 45,
			"rating":          4.5,
			"videoUsed":       true,
		},
	})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "history", line["audit"])
	assert.Equal(t, "session_completed", line["event_type"])
	assert.Equal(t, "elder-1", line["actor_id"])
	assert.Equal(t, "conn-1", line["connection_id"])
	assert.Equal(t, "sess-1", line["session_id"])
	assert.Equal(t, float64(45), line["durationMinutes"])
	assert.Equal(t, 4.5, line["rating"])
	assert.Equal(t, true, line["videoUsed"])
	assert.NotContains(t, line, "ip")
}
