package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tyrz939/dehum-assistant/internal/message"
)

const remoteTimeout = 5 * time.Second

// RemoteStore persists sessions through the site bridge's admin-ajax
// endpoints, authenticated by a bearer key plus a per-call nonce. The bridge
// only keeps user/assistant exchanges; tool caches stay local to the process,
// so a freshly loaded remote session starts with an empty cache.
type RemoteStore struct {
	ajaxURL string
	apiKey  string
	client  *http.Client
}

var _ Store = (*RemoteStore)(nil)

// NewRemoteStore points at the site root, e.g. https://example.com.
func NewRemoteStore(siteURL, apiKey string) *RemoteStore {
	return &RemoteStore{
		ajaxURL: strings.TrimRight(siteURL, "/") + "/wp-admin/admin-ajax.php",
		apiKey:  apiKey,
		client:  &http.Client{Timeout: remoteTimeout},
	}
}

type remoteEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (r *RemoteStore) nonce(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.ajaxURL+"?action=dehum_get_nonce", nil)
	if err != nil {
		return "fallback_nonce"
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "fallback_nonce"
	}
	defer resp.Body.Close()

	var env remoteEnvelope
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&env) != nil || !env.Success {
		return "fallback_nonce"
	}
	var data struct {
		Nonce string `json:"nonce"`
	}
	if json.Unmarshal(env.Data, &data) != nil || data.Nonce == "" {
		return "fallback_nonce"
	}
	return data.Nonce
}

func (r *RemoteStore) post(ctx context.Context, form url.Values) (*remoteEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.ajaxURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge returned status %d", resp.StatusCode)
	}
	var env remoteEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode bridge response: %w", err)
	}
	return &env, nil
}

func (r *RemoteStore) Load(ctx context.Context, id string) (*Session, error) {
	env, err := r.post(ctx, url.Values{
		"action":     {"dehum_get_session"},
		"session_id": {id},
		"nonce":      {r.nonce(ctx)},
	})
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if !env.Success {
		return nil, ErrNotFound
	}

	var data struct {
		History []struct {
			Message   string `json:"message"`
			Response  string `json:"response"`
			Timestamp string `json:"timestamp"`
		} `json:"history"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}

	sess := New(id)
	for _, entry := range data.History {
		if entry.Message != "" {
			sess.Append(message.UserMessage(entry.Message))
		}
		if entry.Response != "" {
			sess.Append(message.AssistantMessage(entry.Response, nil))
		}
	}
	sess.MessageCount = len(sess.History)
	return sess, nil
}

func (r *RemoteStore) Save(ctx context.Context, sess *Session) error {
	type wpEntry struct {
		Message   string `json:"message"`
		Response  string `json:"response"`
		UserIP    string `json:"user_ip"`
		Timestamp string `json:"timestamp"`
	}
	var history []wpEntry
	for _, msg := range sess.History {
		switch msg.Role {
		case message.RoleUser:
			history = append(history, wpEntry{Message: msg.Content, Timestamp: msg.Timestamp.Format(time.RFC3339)})
		case message.RoleAssistant:
			if msg.Content != "" {
				history = append(history, wpEntry{Response: msg.Content, Timestamp: msg.Timestamp.Format(time.RFC3339)})
			}
		}
	}
	payload, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	env, err := r.post(ctx, url.Values{
		"action":     {"dehum_save_session"},
		"session_id": {sess.ID},
		"history":    {string(payload)},
		"nonce":      {r.nonce(ctx)},
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	if !env.Success {
		return fmt.Errorf("save session %s: bridge rejected request", sess.ID)
	}
	return nil
}

func (r *RemoteStore) Delete(ctx context.Context, id string) error {
	env, err := r.post(ctx, url.Values{
		"action":     {"dehum_delete_session"},
		"session_id": {id},
		"nonce":      {r.nonce(ctx)},
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if !env.Success {
		return fmt.Errorf("delete session %s: bridge rejected request", id)
	}
	return nil
}

// List is not supported by the bridge; distinguishing "no sessions" from
// "cannot enumerate" is left to the caller via ErrListUnsupported.
func (r *RemoteStore) List(ctx context.Context) ([]string, error) {
	return nil, ErrListUnsupported
}

func (r *RemoteStore) Close() error { return nil }
