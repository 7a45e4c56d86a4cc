package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/haasonsaas/pinboard/internal/pins"
	"github.com/haasonsaas/pinboard/pkg/models"
)

// EventHandler receives converted gateway events. *pins.Service satisfies it.
type EventHandler interface {
	HandleMessageCreate(ctx context.Context, msg *models.Message)
	HandleMessageEdit(ctx context.Context, ev pins.EditEvent)
	HandleMessageDelete(ctx context.Context, ev pins.DeleteEvent)
	HandleReactionAdd(ctx context.Context, ev pins.ReactionEvent)
}

var _ EventHandler = (*pins.Service)(nil)

// dispatch returns the handler and the context events should run under, or
// nil when no handler is set.
func (c *Client) dispatch() (EventHandler, context.Context) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return c.handler, ctx
}

func (c *Client) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	c.mu.Lock()
	c.selfID = r.User.ID
	c.mu.Unlock()

	c.logger.Info("discord connection ready",
		"user", r.User.Username,
		"user_id", r.User.ID,
		"guilds", len(r.Guilds))
}

func (c *Client) handleDisconnect(s *discordgo.Session, d *discordgo.Disconnect) {
	c.logger.Warn("disconnected from discord, waiting for the gateway to reconnect")
}

func (c *Client) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	handler, ctx := c.dispatch()
	if handler == nil || m.Message == nil {
		return
	}

	c.logger.Debug("received message",
		"channel_id", m.ChannelID,
		"message_id", m.ID,
		"content_length", len(m.Content))

	handler.HandleMessageCreate(ctx, convertMessage(m.Message))
}

func (c *Client) handleMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	handler, ctx := c.dispatch()
	if handler == nil || m.Message == nil {
		return
	}
	handler.HandleMessageEdit(ctx, pins.EditEvent{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Cached:    convertMessage(m.BeforeUpdate),
	})
}

func (c *Client) handleMessageDelete(s *discordgo.Session, m *discordgo.MessageDelete) {
	handler, ctx := c.dispatch()
	if handler == nil || m.Message == nil {
		return
	}
	handler.HandleMessageDelete(ctx, pins.DeleteEvent{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Cached:    convertMessage(m.BeforeDelete),
	})
}

func (c *Client) handleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	handler, ctx := c.dispatch()
	if handler == nil || r.MessageReaction == nil {
		return
	}
	handler.HandleReactionAdd(ctx, pins.ReactionEvent{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.APIName(),
	})
}
