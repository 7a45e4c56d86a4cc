package models

// ChannelKind describes what sort of channel a Channel is.
type ChannelKind string

const (
	ChannelKindText     ChannelKind = "text"
	ChannelKindNews     ChannelKind = "news"
	ChannelKindThread   ChannelKind = "thread"
	ChannelKindVoice    ChannelKind = "voice"
	ChannelKindCategory ChannelKind = "category"
	ChannelKindOther    ChannelKind = "other"
)

// Channel is a platform channel referenced by the service.
type Channel struct {
	ID           string      `json:"id"`
	GuildID      string      `json:"guild_id"`
	Name         string      `json:"name"`
	Kind         ChannelKind `json:"kind"`
	SupportsPins bool        `json:"supports_pins"`
}

// Mention renders the channel as a chat mention.
func (c *Channel) Mention() string {
	return "<#" + c.ID + ">"
}
