// Package linkedin wraps the external messaging provider (Unipile-style API)
// behind typed operations, fronted by a response cache with randomized TTLs.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"unicode/utf8"

	"github.com/ignite/linkedin-outreach/internal/config"
	"github.com/ignite/linkedin-outreach/internal/pkg/httpretry"
)

// MaxInvitationChars is the provider's cap on connection-request notes.
const MaxInvitationChars = 300

// Client is a per-account messaging provider client. All outbound calls use
// the configured timeout (30 s by default) and surface provider status codes
// unchanged in the Result.
type Client struct {
	baseURL    string
	apiKey     string
	accountID  string
	httpClient httpretry.HTTPDoer
	cache      *ResponseCache
}

// NewClient creates a provider client bound to one messaging account.
// The cache may be shared across clients; pass nil to disable caching.
func NewClient(cfg config.UnipileConfig, accountID string, cache *ResponseCache) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		accountID: accountID,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
		cache: cache,
	}
}

// AccountID returns the external account this client acts as.
func (c *Client) AccountID() string { return c.accountID }

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, payload any) (int, []byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func resultFor(status int, body []byte, err error) Result {
	if err != nil {
		return Result{Success: false, StatusCode: status, Error: err.Error()}
	}
	if status == http.StatusOK || status == http.StatusCreated {
		return Result{Success: true, StatusCode: status}
	}
	return Result{Success: false, StatusCode: status, Error: string(body)}
}

// SendInvitation sends a connection request to the given provider handle.
// The note is truncated to the provider's 300-character cap, counted in
// characters so multi-byte text survives intact. Duplicate invitations are
// idempotent on the provider side.
func (c *Client) SendInvitation(ctx context.Context, providerID, message string) Result {
	if utf8.RuneCountInString(message) > MaxInvitationChars {
		message = string([]rune(message)[:MaxInvitationChars])
	}
	payload := map[string]string{
		"account_id":  c.accountID,
		"provider_id": providerID,
		"message":     message,
	}
	status, body, err := c.doRequest(ctx, http.MethodPost, "/api/v1/users/invite", nil, payload)
	return resultFor(status, body, err)
}

// SendMessage posts a message into an existing chat. Fails if the chat is
// closed on the provider side.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) Result {
	payload := map[string]string{"text": text}
	path := fmt.Sprintf("/api/v1/chats/%s/messages", url.PathEscape(chatID))
	status, body, err := c.doRequest(ctx, http.MethodPost, path, nil, payload)
	return resultFor(status, body, err)
}

type chatListEnvelope struct {
	Items []Chat `json:"items"`
}

// ListChats returns the account's chats, newest first. Responses are cached
// for 30-60 minutes; pass forceRefresh to bypass (used sparingly).
func (c *Client) ListChats(ctx context.Context, limit int, forceRefresh bool) ChatList {
	key := chatsKey(c.accountID)
	if c.cache != nil && !forceRefresh {
		if data, _, ok := c.cache.Get(key); ok {
			var env chatListEnvelope
			if err := json.Unmarshal(data, &env); err == nil {
				return ChatList{Result: Result{Success: true, StatusCode: http.StatusOK}, Chats: env.Items}
			}
		}
	}

	params := url.Values{}
	params.Set("account_id", c.accountID)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	status, body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/chats", params, nil)
	res := resultFor(status, body, err)
	if !res.Success {
		return ChatList{Result: res}
	}

	var env chatListEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ChatList{Result: Result{Success: false, StatusCode: status, Error: fmt.Sprintf("decoding chats: %v", err)}}
	}
	if c.cache != nil {
		c.cache.Put(key, body, "", chatsTTLMinMinutes, chatsTTLMaxMinutes)
	}
	return ChatList{Result: res, Chats: env.Items}
}

type messageListEnvelope struct {
	Items []Message `json:"items"`
}

// messagesHash fingerprints a message list by its newest entry. The provider
// returns messages newest first, so a changed first id/timestamp means new
// content.
func messagesHash(msgs []Message) string {
	if len(msgs) == 0 {
		return "empty"
	}
	return msgs[0].ID + "-" + msgs[0].Timestamp
}

// ListChatMessages fetches a chat's messages, newest first. Responses are
// cached for 5-10 minutes; HasNewMessages reports whether the content hash
// changed since the previous fetch of this chat.
func (c *Client) ListChatMessages(ctx context.Context, chatID string, limit int, forceRefresh bool) MessageList {
	key := messagesKey(chatID, limit)
	priorHash := ""
	if c.cache != nil {
		priorHash = c.cache.PriorHash(key)
		if !forceRefresh {
			if data, _, ok := c.cache.Get(key); ok {
				var env messageListEnvelope
				if err := json.Unmarshal(data, &env); err == nil {
					return MessageList{
						Result:    Result{Success: true, StatusCode: http.StatusOK},
						Messages:  env.Items,
						FromCache: true,
						// A served cache entry was already reported once.
						HasNewMessages: false,
					}
				}
			}
		}
	}

	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := fmt.Sprintf("/api/v1/chats/%s/messages", url.PathEscape(chatID))
	status, body, err := c.doRequest(ctx, http.MethodGet, path, params, nil)
	res := resultFor(status, body, err)
	if !res.Success {
		return MessageList{Result: res}
	}

	var env messageListEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return MessageList{Result: Result{Success: false, StatusCode: status, Error: fmt.Sprintf("decoding messages: %v", err)}}
	}
	hash := messagesHash(env.Items)
	if c.cache != nil {
		c.cache.Put(key, body, hash, messagesTTLMinMinutes, messagesTTLMaxMinutes)
	}
	return MessageList{
		Result:         res,
		Messages:       env.Items,
		HasNewMessages: priorHash != "" && priorHash != hash,
	}
}

// GetProfile fetches a profile by provider handle. Cached for 24-30 hours.
func (c *Client) GetProfile(ctx context.Context, handle string) Profile {
	key := profileKey(handle)
	if c.cache != nil {
		if data, _, ok := c.cache.Get(key); ok {
			var p Profile
			if err := json.Unmarshal(data, &p); err == nil {
				p.Result = Result{Success: true, StatusCode: http.StatusOK}
				return p
			}
		}
	}

	params := url.Values{}
	params.Set("account_id", c.accountID)
	path := fmt.Sprintf("/api/v1/users/%s", url.PathEscape(handle))
	status, body, err := c.doRequest(ctx, http.MethodGet, path, params, nil)
	res := resultFor(status, body, err)
	if !res.Success {
		return Profile{Result: res}
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{Result: Result{Success: false, StatusCode: status, Error: fmt.Sprintf("decoding profile: %v", err)}}
	}
	p.Result = res
	if c.cache != nil {
		c.cache.Put(key, body, "", profileTTLMinMinutes, profileTTLMaxMinutes)
	}
	return p
}

type accountEnvelope struct {
	Sources []struct {
		Status         string `json:"status"`
		CheckpointType string `json:"checkpoint_type"`
	} `json:"sources"`
}

// CheckConnectionStatus probes the account's health on the provider.
// Never cached.
func (c *Client) CheckConnectionStatus(ctx context.Context) AccountStatus {
	path := fmt.Sprintf("/api/v1/accounts/%s", url.PathEscape(c.accountID))
	status, body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	res := resultFor(status, body, err)
	if !res.Success {
		return AccountStatus{Result: res}
	}

	var env accountEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return AccountStatus{Result: Result{Success: false, StatusCode: status, Error: fmt.Sprintf("decoding account: %v", err)}}
	}
	out := AccountStatus{Result: res, SourceStatus: "OK"}
	if len(env.Sources) > 0 {
		out.SourceStatus = env.Sources[0].Status
		out.CheckpointType = env.Sources[0].CheckpointType
	}
	return out
}
