package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyrz939/dehum-assistant/internal/message"
)

func TestCacheSequenceOrdersEntries(t *testing.T) {
	s := New("")
	require.NotEmpty(t, s.ID)

	s.CachePut("calculate_dehum_load|{\"a\":1}", json.RawMessage(`{"latentLoad_L24h":10}`))
	s.CachePut("get_product_catalog|{}", json.RawMessage(`[]`))
	s.CachePut("calculate_dehum_load|{\"a\":2}", json.RawMessage(`{"latentLoad_L24h":20}`))

	assert.Equal(t, int64(1), s.ToolCache["calculate_dehum_load|{\"a\":1}"].Seq)
	assert.Equal(t, int64(3), s.ToolCache["calculate_dehum_load|{\"a\":2}"].Seq)

	got, ok := s.CacheGet("get_product_catalog|{}")
	require.True(t, ok)
	assert.JSONEq(t, `[]`, string(got))

	_, ok = s.CacheGet("missing")
	assert.False(t, ok)
}

func TestSessionRoundTripJSON(t *testing.T) {
	s := New("abc")
	s.Append(message.UserMessage("size my room"), message.AssistantMessage("sure", nil))
	s.CachePut("k", json.RawMessage(`{"v":1}`))
	s.Touch()

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back Session
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "abc", back.ID)
	assert.Len(t, back.History, 2)
	assert.Equal(t, 2, back.MessageCount)
	assert.Equal(t, int64(1), back.ToolCache["k"].Seq)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Load(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	s := New("s1")
	require.NoError(t, store.Save(ctx, s))
	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer store.Close()

	s := New("s1")
	s.Append(message.UserMessage("hello"))
	s.CachePut("calculate_dehum_load|{}", json.RawMessage(`{"latentLoad_L24h":42}`))
	require.NoError(t, store.Save(ctx, s))

	// Upsert keeps a single row.
	s.Append(message.AssistantMessage("hi", nil))
	s.Touch()
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got.History, 2)
	assert.Equal(t, int64(1), got.ToolCache["calculate_dehum_load|{}"].Seq)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	_, err = store.Load(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoteStoreLoadAndSave(t *testing.T) {
	var savedHistory string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key123", r.Header.Get("Authorization"))

		if r.Method == http.MethodGet {
			w.Write([]byte(`{"success":true,"data":{"nonce":"n1"}}`))
			return
		}
		require.NoError(t, r.ParseForm())
		switch r.Form.Get("action") {
		case "dehum_get_session":
			w.Write([]byte(`{"success":true,"data":{"history":[
				{"message":"size my pool room","response":"","timestamp":"2026-01-01T00:00:00Z"},
				{"message":"","response":"What are the dimensions?","timestamp":"2026-01-01T00:00:05Z"}
			]}}`))
		case "dehum_save_session":
			savedHistory = r.Form.Get("history")
			assert.Equal(t, "n1", r.Form.Get("nonce"))
			w.Write([]byte(`{"success":true}`))
		default:
			w.Write([]byte(`{"success":false}`))
		}
	}))
	defer srv.Close()

	store := NewRemoteStore(srv.URL, "key123")
	ctx := context.Background()

	sess, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.History, 2)
	assert.Equal(t, message.RoleUser, sess.History[0].Role)
	assert.Equal(t, message.RoleAssistant, sess.History[1].Role)

	require.NoError(t, store.Save(ctx, sess))
	var entries []map[string]string
	require.NoError(t, json.Unmarshal([]byte(savedHistory), &entries))
	assert.Len(t, entries, 2)
	assert.Equal(t, "size my pool room", entries[0]["message"])
	assert.Equal(t, "What are the dimensions?", entries[1]["response"])

	// The bridge cannot enumerate sessions; that must not read as an empty
	// store.
	_, err = store.List(ctx)
	assert.ErrorIs(t, err, ErrListUnsupported)
}
