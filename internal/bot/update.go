// Package bot implements the update-processing pipeline: the session/auth
// gate, the sliding-window rate limiter, the error classifier/responder,
// the orchestrator that composes them around every inbound update, and the
// feature handlers they dispatch to.
//
// This file defines the transport-facing types. The chat platform itself is
// an external collaborator: the host adapter converts platform events into
// Update values and implements Transport for outbound sends. The pipeline
// treats transport failures as catchable errors, never as fatal.
package bot

import "context"

// UpdateKind distinguishes the inbound event shapes the pipeline routes.
type UpdateKind int

const (
	// KindMessage is a plain text message (possibly a slash command).
	KindMessage UpdateKind = iota
	// KindCallback is a button interaction carrying callback data.
	KindCallback
	// KindMemberEvent is a chat-membership change (join/leave).
	KindMemberEvent
)

// Sender identifies the account that produced an update.
type Sender struct {
	ID           int64
	IsBot        bool
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
	IsPremium    bool
}

// Update is one inbound event from the chat transport.
//
// From is nil for channel-level events that carry no sender identity; the
// pipeline passes those through without invoking any handler.
type Update struct {
	ID       int64
	Kind     UpdateKind
	ChatID   int64
	ChatType string // private | group | supergroup | channel
	From     *Sender

	// KindMessage
	Text string

	// KindCallback
	CallbackID   string
	CallbackData string
	MessageID    int // message the callback originated from, for edits
}

// IsGroup reports whether the update originates from a group context.
func (u Update) IsGroup() bool {
	return u.ChatType == "group" || u.ChatType == "supergroup"
}

// Button is one inline keyboard button.
type Button struct {
	Label string
	Data  string
}

// Keyboard is an inline keyboard layout, row-major.
type Keyboard struct {
	Rows [][]Button
}

// RetryKeyboard offers a single retry action for a failed operation.
func RetryKeyboard(data string) *Keyboard {
	return &Keyboard{Rows: [][]Button{{{Label: "🔄 إعادة المحاولة", Data: data}}}}
}

// Transport is the outbound contract the host chat adapter implements.
// All methods may fail; callers classify and degrade, they do not crash.
type Transport interface {
	// SendMessage posts a new message to a chat.
	SendMessage(ctx context.Context, chatID int64, text string, kb *Keyboard) error
	// EditMessage rewrites an existing message (used for callback flows).
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *Keyboard) error
	// AnswerCallback acknowledges a button interaction with a short notice.
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
