// Package types contains shared message types used across multiple packages.
// This avoids import cycles between access, gateway and the channel adapters.
package types

// ChatKind mirrors the transport's chat classification.
type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSuperGroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

// IsPrivate reports whether the chat is a one-on-one conversation.
func (k ChatKind) IsPrivate() bool {
	return k == ChatPrivate
}

// EntityKind is the type tag of a message entity span.
type EntityKind string

// EntityMention is an "@username" mention span.
const EntityMention EntityKind = "mention"

// Entity is a typed span inside a message text. Offset and Length are in
// UTF-16 code units, as delivered by the Telegram Bot API.
type Entity struct {
	Kind   EntityKind
	Offset int
	Length int
}

// Inbound represents one message received from the chat transport.
type Inbound struct {
	ChatID    int64
	UserID    int64
	Username  string // sender's @username, may be empty
	Text      string
	ChatKind  ChatKind
	ChatTitle string

	// Reply context
	IsReply       bool
	ReplyAuthorID int64 // author of the message being replied to

	Entities []Entity
}

// BotIdentity is the bot's own resolved identity, needed for reply and
// mention detection in group chats.
type BotIdentity struct {
	ID       int64
	Username string
}

// Resolved reports whether the identity has been populated.
func (b BotIdentity) Resolved() bool {
	return b.ID != 0 && b.Username != ""
}
