package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/generations-connect/connect-server-go/internal/middleware"
	"github.com/generations-connect/connect-server-go/internal/model"
	"github.com/generations-connect/connect-server-go/internal/sse"
)

func TestEventsHandler_RequiresUser(t *testing.T) {
	handler := NewEventsHandler(sse.NewBroker(nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestEventsHandler_StreamsUserEvents(t *testing.T) {
	broker := sse.NewBroker(nil)
	defer broker.Close()

	events := NewEventsHandler(broker)
	user := &model.User{ID: "elder-1", UserType: model.UserTypeElder}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		events.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), user)))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	readEvent := func() (string, string) {
		var eventType, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				eventType = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && eventType != "":
				return eventType, data
			}
		}
	}

	eventType, data := readEvent()
	assert.Equal(t, "connected", eventType)
	assert.Contains(t, data, "elder-1")

	require.Eventually(t, func() bool { return broker.ClientCount("elder-1") == 1 }, time.Second, 10*time.Millisecond)

	event, err := sse.NewEvent(sse.EventConnectionRequested, map[string]string{"connectionId": "c-1"})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, "young-1", event))
	require.NoError(t, broker.Publish(ctx, "elder-1", event))

	eventType, data = readEvent()
	assert.Equal(t, string(sse.EventConnectionRequested), eventType)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(data), &payload))
	assert.Equal(t, "c-1", payload["connectionId"])
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	handler := &EventsHandler{}
	rec := httptest.NewRecorder()

	err := handler.sendRawEvent(rec, rec, sse.Event{
		Type: sse.EventVideoIncomingCall,
		Data: json.RawMessage(`{"roomId": "r-1"}`),
	})

	require.NoError(t, err)
	body := rec.Body.String()
	assert.Contains(t, body, "event: video.incoming_call\n")
	assert.Contains(t, body, `data: {"roomId": "r-1"}`)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}
