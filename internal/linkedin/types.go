package linkedin

import "time"

// Result is the outcome of a single provider operation. StatusCode carries
// the provider's HTTP status unchanged so callers can distinguish rejection
// (4xx) from transient failure (5xx).
type Result struct {
	Success    bool
	StatusCode int
	Error      string
}

// Chat is the narrow view of a provider chat the engines read.
type Chat struct {
	ID                 string `json:"id"`
	AttendeeProviderID string `json:"attendee_provider_id"`
	Name               string `json:"name"`
	UnreadCount        int    `json:"unread_count"`
	Timestamp          string `json:"timestamp"`
}

// ChatList is the result of listing an account's chats.
type ChatList struct {
	Result
	Chats []Chat
}

// Message is the narrow view of a chat message the engines read.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsSender  int    `json:"is_sender"` // 1 = sent by the account, 0 = inbound
	Timestamp string `json:"timestamp"`
}

// SentAt parses the provider timestamp. Returns the zero time when the
// timestamp is absent or malformed.
func (m Message) SentAt() time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z"} {
		if t, err := time.Parse(layout, m.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// MessageList is the result of fetching a chat's messages.
// HasNewMessages is derived from the response cache content hash.
type MessageList struct {
	Result
	Messages       []Message
	HasNewMessages bool
	FromCache      bool
}

// Profile is the subset of a provider profile the system uses.
type Profile struct {
	Result
	ProviderID string `json:"provider_id"`
	PublicID   string `json:"public_identifier"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Headline   string `json:"headline"`
}

// AccountStatus is the result of the account health probe.
type AccountStatus struct {
	Result
	SourceStatus   string // OK, CREDENTIALS, CHECKPOINT ...
	CheckpointType string
}
