// Package pins tracks pinned messages in the home guild and moves them to
// pinboard channels once a channel reaches Discord's pin limit.
//
// The Service owns a per-process PinCache, drives the reaction based
// confirmation and pinboard selection prompts, and reconciles the stored
// message mirror with gateway edit and delete events.
package pins

import (
	"context"
	"errors"

	"github.com/haasonsaas/pinboard/pkg/models"
)

// MaxPinsPerChannel is Discord's fixed limit on pinned messages per channel.
const MaxPinsPerChannel = 50

// Reaction emoji used by the interactive prompts.
const (
	EmojiAccept  = "✅"
	EmojiReject  = "❌"
	EmojiPrev    = "⬅️"
	EmojiNext    = "➡️"
	EmojiPin     = "📌"
	digitsOnPage = 9
)

// DigitEmojis are the selector icons, indexed by icon position.
var DigitEmojis = [digitsOnPage]string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣"}

var (
	// ErrChannelNotPinnable is returned when a channel ID does not resolve to a
	// channel that supports pins.
	ErrChannelNotPinnable = errors.New("channel does not support pins")

	// ErrPromptAbandoned is returned by reaction waits that ended through
	// timeout or cancellation.
	ErrPromptAbandoned = errors.New("prompt abandoned")
)

// Prompt is an embed posted for an interactive exchange.
type Prompt struct {
	Title       string
	Description string
}

// Platform is the chat transport the service drives. Failures are reported as
// *channels.Error values so callers can tell permission and not-found
// failures apart from transient ones.
type Platform interface {
	// SelfID returns the bot's own user ID.
	SelfID() string

	Channel(ctx context.Context, channelID string) (*models.Channel, error)
	TextChannels(ctx context.Context, guildID string) ([]*models.Channel, error)

	SendMessage(ctx context.Context, channelID, content string) (*models.Message, error)
	SendPrompt(ctx context.Context, channelID string, prompt Prompt) (*models.Message, error)
	EditPrompt(ctx context.Context, channelID, messageID string, prompt Prompt) error
	FetchMessage(ctx context.Context, channelID, messageID string) (*models.Message, error)
	// FetchPinnedMessages returns the pinned messages of a channel, most
	// recently pinned first.
	FetchPinnedMessages(ctx context.Context, channelID string) ([]*models.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	UnpinMessage(ctx context.Context, channelID, messageID string) error

	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error
	ClearReactions(ctx context.Context, channelID, messageID string) error

	CanManageMessages(ctx context.Context, channelID, userID string) (bool, error)
}

// ReactionEvent is a reaction added to a message.
type ReactionEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

// EditEvent is a raw message update. Cached holds the gateway's copy of the
// message from before the edit, when it had one.
type EditEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	Cached    *models.Message
}

// DeleteEvent is a raw message delete. Cached holds the gateway's last copy of
// the message, when it had one.
type DeleteEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	Cached    *models.Message
}

// MessageSource tags where a copy of a message came from.
type MessageSource int

const (
	// SourceLive is a copy from the gateway cache or a REST fetch.
	SourceLive MessageSource = iota
	// SourceMirror is a copy from the message store.
	SourceMirror
)

func (s MessageSource) String() string {
	if s == SourceMirror {
		return "mirror"
	}
	return "live"
}

// KnownMessage is a message copy tagged with its source. Reconciliation only
// branches on the source where live and mirrored copies behave differently.
type KnownMessage struct {
	*models.Message
	Source MessageSource
}

// LiveMessage tags msg as a platform copy.
func LiveMessage(msg *models.Message) KnownMessage {
	return KnownMessage{Message: msg, Source: SourceLive}
}

// MirroredMessage tags msg as a stored mirror copy.
func MirroredMessage(msg *models.Message) KnownMessage {
	return KnownMessage{Message: msg, Source: SourceMirror}
}

// Mirrored reports whether the copy came from the message store.
func (k KnownMessage) Mirrored() bool {
	return k.Source == SourceMirror
}
