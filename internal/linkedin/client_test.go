package linkedin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(server *httptest.Server, cache *ResponseCache) *Client {
	return &Client{
		baseURL:    server.URL,
		apiKey:     "test-api-key",
		accountID:  "acc-1",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cache:      cache,
	}
}

func TestExtractProviderID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"public profile", "https://www.linkedin.com/in/jane-doe-123/", "jane-doe-123", false},
		{"public profile with query", "https://linkedin.com/in/jdoe?miniProfile=x", "jdoe", false},
		{"sales navigator", "https://www.linkedin.com/sales/people/ACwAAA123,NAME", "ACwAAA123", false},
		{"not a profile url", "https://example.com/jane", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractProviderID(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSendInvitation(t *testing.T) {
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/invite", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("X-API-KEY"))
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"object":"UserInvitationSent"}`))
	}))
	defer server.Close()

	client := newTestClient(server, nil)
	res := client.SendInvitation(context.Background(), "jane-doe", "Hi Jane, let's connect")

	assert.True(t, res.Success)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "acc-1", gotPayload["account_id"])
	assert.Equal(t, "jane-doe", gotPayload["provider_id"])
}

func TestSendInvitationTruncatesMessage(t *testing.T) {
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	long := make([]byte, 450)
	for i := range long {
		long[i] = 'a'
	}
	client := newTestClient(server, nil)
	res := client.SendInvitation(context.Background(), "jane-doe", string(long))

	require.True(t, res.Success)
	assert.Len(t, gotPayload["message"], MaxInvitationChars)
}

func TestSendInvitationTruncationKeepsRunesWhole(t *testing.T) {
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// Spanish notes lean on multi-byte characters; the cap counts them as
	// one character each and never splits one.
	long := strings.Repeat("ñ", 400)
	client := newTestClient(server, nil)
	res := client.SendInvitation(context.Background(), "jane-doe", long)

	require.True(t, res.Success)
	assert.True(t, utf8.ValidString(gotPayload["message"]))
	assert.Equal(t, MaxInvitationChars, utf8.RuneCountInString(gotPayload["message"]))
}

func TestSendInvitationProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"title":"already invited"}`))
	}))
	defer server.Close()

	client := newTestClient(server, nil)
	res := client.SendInvitation(context.Background(), "jane-doe", "hi")

	assert.False(t, res.Success)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Contains(t, res.Error, "already invited")
}

func TestListChatsUsesCache(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/v1/chats", r.URL.Path)
		assert.Equal(t, "acc-1", r.URL.Query().Get("account_id"))
		w.Write([]byte(`{"items":[{"id":"chat-1","attendee_provider_id":"jane-doe"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server, NewResponseCache())

	first := client.ListChats(context.Background(), 50, false)
	require.True(t, first.Success)
	require.Len(t, first.Chats, 1)
	assert.Equal(t, "chat-1", first.Chats[0].ID)

	second := client.ListChats(context.Background(), 50, false)
	require.True(t, second.Success)
	assert.Equal(t, 1, calls, "second call should be served from cache")

	third := client.ListChats(context.Background(), 50, true)
	require.True(t, third.Success)
	assert.Equal(t, 2, calls, "forceRefresh should bypass the cache")
}

func TestListChatMessagesNewMessageDetection(t *testing.T) {
	responses := []string{
		`{"items":[{"id":"m1","text":"hello","is_sender":1,"timestamp":"2026-08-20T10:00:00.000Z"}]}`,
		`{"items":[{"id":"m2","text":"hi back","is_sender":0,"timestamp":"2026-08-20T11:00:00.000Z"},{"id":"m1","text":"hello","is_sender":1,"timestamp":"2026-08-20T10:00:00.000Z"}]}`,
	}
	call := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(responses[call]))
		if call < len(responses)-1 {
			call++
		}
	}))
	defer server.Close()

	client := newTestClient(server, NewResponseCache())

	first := client.ListChatMessages(context.Background(), "chat-1", 20, false)
	require.True(t, first.Success)
	assert.False(t, first.HasNewMessages, "first fetch has no prior hash to compare")

	second := client.ListChatMessages(context.Background(), "chat-1", 20, true)
	require.True(t, second.Success)
	assert.True(t, second.HasNewMessages, "newest message changed")
	assert.Equal(t, "m2", second.Messages[0].ID)
	assert.Equal(t, 0, second.Messages[0].IsSender)
}

func TestGetProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/jane-doe", r.URL.Path)
		w.Write([]byte(`{"provider_id":"ACwAAA1","public_identifier":"jane-doe","first_name":"Jane","last_name":"Doe","headline":"VP Marketing"}`))
	}))
	defer server.Close()

	client := newTestClient(server, nil)
	p := client.GetProfile(context.Background(), "jane-doe")

	require.True(t, p.Success)
	assert.Equal(t, "ACwAAA1", p.ProviderID)
	assert.Equal(t, "VP Marketing", p.Headline)
}

func TestCheckConnectionStatusCheckpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/accounts/acc-1", r.URL.Path)
		w.Write([]byte(`{"sources":[{"status":"CHECKPOINT","checkpoint_type":"2FA"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server, nil)
	st := client.CheckConnectionStatus(context.Background())

	require.True(t, st.Success)
	assert.Equal(t, "CHECKPOINT", st.SourceStatus)
	assert.Equal(t, "2FA", st.CheckpointType)
}

func TestMessageSentAt(t *testing.T) {
	m := Message{Timestamp: "2026-08-20T10:30:00.000Z"}
	ts := m.SentAt()
	require.False(t, ts.IsZero())
	assert.Equal(t, 10, ts.UTC().Hour())

	assert.True(t, Message{Timestamp: "garbage"}.SentAt().IsZero())
	assert.True(t, Message{}.SentAt().IsZero())
}
