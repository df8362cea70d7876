// Package session holds conversation state and its persistence backends.
package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tyrz939/dehum-assistant/internal/message"
)

// CacheEntry is one memoized tool result. Seq orders entries by execution so
// "most recent" survives serialization; Go maps have no insertion order.
type CacheEntry struct {
	Seq    int64           `json:"seq"`
	Result json.RawMessage `json:"result"`
}

// Session is one conversation: its history, tool cache, and bookkeeping.
type Session struct {
	ID           string                `json:"session_id"`
	History      []message.Message     `json:"history"`
	ToolCache    map[string]CacheEntry `json:"tool_cache"`
	CreatedAt    time.Time             `json:"created_at"`
	LastActivity time.Time             `json:"last_activity"`
	MessageCount int                   `json:"message_count"`
}

// New creates a session. An empty id gets a generated UUID.
func New(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Session{
		ID:           id,
		ToolCache:    make(map[string]CacheEntry),
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Append adds messages to the conversation history.
func (s *Session) Append(msgs ...message.Message) {
	s.History = append(s.History, msgs...)
}

// Touch records activity at the end of a turn: one user message in, one
// assistant message out.
func (s *Session) Touch() {
	s.LastActivity = time.Now().UTC()
	s.MessageCount += 2
}

// CacheGet returns the cached result for key, if present.
func (s *Session) CacheGet(key string) (json.RawMessage, bool) {
	e, ok := s.ToolCache[key]
	if !ok {
		return nil, false
	}
	return e.Result, true
}

// CachePut stores a tool result under key, stamped after every existing entry.
func (s *Session) CachePut(key string, result json.RawMessage) {
	if s.ToolCache == nil {
		s.ToolCache = make(map[string]CacheEntry)
	}
	var max int64
	for _, e := range s.ToolCache {
		if e.Seq > max {
			max = e.Seq
		}
	}
	s.ToolCache[key] = CacheEntry{Seq: max + 1, Result: result}
}

// Clear empties the conversation while keeping the session alive.
func (s *Session) Clear() {
	s.History = nil
	s.ToolCache = make(map[string]CacheEntry)
	s.MessageCount = 0
}
