package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyrz939/dehum-assistant/internal/catalog"
	"github.com/tyrz939/dehum-assistant/internal/client"
	"github.com/tyrz939/dehum-assistant/internal/message"
	"github.com/tyrz939/dehum-assistant/internal/orchestrator"
	"github.com/tyrz939/dehum-assistant/internal/rag"
	"github.com/tyrz939/dehum-assistant/internal/session"
	"github.com/tyrz939/dehum-assistant/internal/tool"
)

func newTestServer(t *testing.T, fake *client.FakeProvider, apiKey string) (*Server, *session.MemoryStore) {
	t.Helper()
	cat, err := catalog.Load("")
	require.NoError(t, err)
	retriever, err := rag.Index(t.TempDir())
	require.NoError(t, err)
	exec := tool.NewExecutor(tool.NewDehumRegistry(cat, retriever))
	store := session.NewMemoryStore()
	orch := orchestrator.New(&client.Client{Provider: fake, Model: "fake-model"}, exec, store, cat)
	return New(orch, store, apiKey), store
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &client.FakeProvider{}, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "dehum-assistant", body["service"])
	assert.Equal(t, float64(3), body["tools_loaded"])
}

func TestChatEndpoint(t *testing.T) {
	fake := &client.FakeProvider{Responses: []message.CompletionResponse{
		client.TextResponse("Tell me about your room size."),
	}}
	srv, _ := newTestServer(t, fake, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json",
		strings.NewReader(`{"message":"hi","session_id":"s1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body orchestrator.ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "s1", body.SessionID)
	assert.Contains(t, body.Message, "room size")
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv, _ := newTestServer(t, &client.FakeProvider{}, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json",
		strings.NewReader(`{"message":"  ","session_id":"s1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBearerAuthEnforcedWhenConfigured(t *testing.T) {
	srv, _ := newTestServer(t, &client.FakeProvider{}, "secret")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json",
		strings.NewReader(`{"message":"hi","session_id":"s1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/chat",
		strings.NewReader(`{"message":"hi","session_id":"s1"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open for load balancer probes.
	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatStreamEmitsEventsThenEndMarker(t *testing.T) {
	fake := &client.FakeProvider{Responses: []message.CompletionResponse{
		client.TextResponse("streamed answer"),
	}}
	srv, _ := newTestServer(t, fake, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat/stream", "application/json",
		strings.NewReader(`{"message":"hi","session_id":"s1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var dataLines []string
	for _, line := range strings.Split(readAll(t, resp), "\n") {
		if after, ok := strings.CutPrefix(line, "data: "); ok {
			dataLines = append(dataLines, after)
		}
	}
	require.GreaterOrEqual(t, len(dataLines), 2)
	assert.Equal(t, "[DONE]", dataLines[len(dataLines)-1])

	var final orchestrator.Event
	require.NoError(t, json.Unmarshal([]byte(dataLines[len(dataLines)-2]), &final))
	assert.True(t, final.IsFinal)
	assert.Equal(t, "s1", final.SessionID)
}

func TestWebSocketTurn(t *testing.T) {
	fake := &client.FakeProvider{Responses: []message.CompletionResponse{
		client.TextResponse("ws answer"),
	}}
	srv, _ := newTestServer(t, fake, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ChatRequest{Message: "hi", SessionID: "s1"}))

	var events []orchestrator.Event
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if string(data) == "[DONE]" {
			break
		}
		var ev orchestrator.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].IsFinal)

	var streamed string
	for _, ev := range events {
		if ev.IsStreamingChunk {
			streamed += ev.Message
		}
	}
	assert.Contains(t, streamed, "ws answer")
}

func TestSessionInfoAndClear(t *testing.T) {
	srv, store := newTestServer(t, &client.FakeProvider{}, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	sess := session.New("s1")
	sess.Append(message.UserMessage("hello"))
	sess.Touch()
	require.NoError(t, store.Save(context.Background(), sess))

	resp, err := http.Get(ts.URL + "/session/s1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "s1", info["session_id"])
	assert.Len(t, info["history"], 1)

	resp, err = http.Post(ts.URL+"/session/s1/clear", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = store.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, session.ErrNotFound)

	resp, err = http.Get(ts.URL + "/session/s1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
