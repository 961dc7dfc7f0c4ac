// Package channel defines the chat platform model shared by transport
// adapters and the persona pipeline.
package channel

import (
	"strconv"
	"strings"
	"time"
)

// ChatType is the platform chat kind.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// IsGroup reports whether the chat has more than two participants.
func (c ChatType) IsGroup() bool {
	return c == ChatGroup || c == ChatSupergroup
}

// Conversation identifies where a message lives: a chat plus an optional
// forum topic. It is comparable and used as the debounce key.
type Conversation struct {
	ChatID  int64
	TopicID int
}

// String renders "chat" or "chat:topic".
func (c Conversation) String() string {
	id := strconv.FormatInt(c.ChatID, 10)
	if c.TopicID == 0 {
		return id
	}
	return id + ":" + strconv.Itoa(c.TopicID)
}

// Identity describes a message author.
type Identity struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
}

// DisplayName returns the first name, else the username, else the numeric id.
func (i Identity) DisplayName() string {
	if name := strings.TrimSpace(i.FirstName); name != "" {
		return name
	}
	if name := strings.TrimSpace(i.Username); name != "" {
		return name
	}
	return strconv.FormatInt(i.ID, 10)
}

// File references platform-hosted media.
type File struct {
	ID       string
	UniqueID string
	Size     int64
	Mime     string
	Name     string
}

// Message is a platform message normalized for the pipeline.
type Message struct {
	ID           int
	Conversation Conversation
	ChatType     ChatType
	Sender       Identity
	// Outgoing marks messages authored by this account.
	Outgoing bool
	// Text holds the message text or the media caption.
	Text      string
	Photo     *File
	Document  *File
	Voice     *File
	Audio     *File
	VideoNote *File
	ReplyToID int
	// ReplyToSelf marks replies to a message this account sent.
	ReplyToSelf bool
	// Mentioned marks messages that address this account by name.
	Mentioned bool
	Date      time.Time
}

// HasMedia reports whether the message carries any attachment.
func (m Message) HasMedia() bool {
	return m.Photo != nil || m.Document != nil || m.Voice != nil || m.Audio != nil || m.VideoNote != nil
}

// Addressed reports whether a group message asks this account for a reply.
func (m Message) Addressed() bool {
	return m.Mentioned || m.ReplyToSelf
}

// Activity is a presence indicator shown to the other party.
type Activity string

const (
	ActivityTyping      Activity = "typing"
	ActivityRecordVoice Activity = "record_voice"
)
