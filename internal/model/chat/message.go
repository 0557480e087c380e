package chat

import "time"

// Kind distinguishes the two conversation owners the agent serves.
type Kind string

const (
	KindUser  Kind = "user"
	KindGroup Kind = "group"
)

// Principal is the addressable owner of a conversation: a single user for
// private chats or a group for shared chats.
type Principal struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// IsGroup reports whether the principal is a shared group chat.
func (p Principal) IsGroup() bool {
	return p.Kind == KindGroup
}

// Message is one immutable inbound chat message.
type Message struct {
	Principal   Principal `json:"principal"`
	SenderID    int64     `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Text        string    `json:"text"`
	ReplyToBot  bool      `json:"replyToBot"`
	MentionsBot bool      `json:"mentionsBot"`
	SentAt      time.Time `json:"sentAt"`
}

// Reply is the user-visible output event produced by a turn.
type Reply struct {
	Text string `json:"text"`
}
