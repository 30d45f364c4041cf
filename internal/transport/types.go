package transport

import (
	"context"
	"io"
	"time"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdateMember  UpdateKind = "member"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
	Member  *MemberEvent
}

type Message struct {
	ID        int
	ChatID    int64
	ThreadID  int // telegram forum topic thread id (0 if none)
	Text      string
	Date      time.Time
	From      UserInfo
	IsGroup   bool
	ChatTitle string
	ChatType  string // "private", "group", "supergroup", "channel"
	// ChatPublic is true when the chat has a public @username.
	ChatPublic bool
	ReplyTo    *ReplyRef
}

type UserInfo struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Premium   bool
}

// ReplyRef identifies the message a message replies to.
type ReplyRef struct {
	MessageID int
	From      UserInfo
}

// MemberEvent is emitted when users join a chat the bot is in.
type MemberEvent struct {
	ChatID     int64
	ChatTitle  string
	ChatType   string
	ChatPublic bool
	Joined     []UserInfo
	Date       time.Time
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	ReplyTo        int // message id to reply to (0 if none)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendVoice(ctx context.Context, to ChatTarget, audio io.Reader, caption string) error

	// React sets a single emoji reaction on a message, replacing any
	// previous reaction from the bot.
	React(ctx context.Context, ref MessageRef, emoji string) error

	// Restrict toggles a member's permission to send messages. canSend=false
	// mutes until the given time (zero time means indefinitely), canSend=true
	// lifts the restriction.
	Restrict(ctx context.Context, chatID, userID int64, canSend bool, until time.Time) error
	Ban(ctx context.Context, chatID, userID int64) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
