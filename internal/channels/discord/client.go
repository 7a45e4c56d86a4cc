// Package discord implements the pin service's platform on top of a
// discordgo session.
package discord

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/haasonsaas/pinboard/internal/channels"
	"github.com/haasonsaas/pinboard/internal/observability"
	"github.com/haasonsaas/pinboard/internal/pins"
	"github.com/haasonsaas/pinboard/pkg/models"
)

// promptColor is the embed accent used for prompts.
const promptColor = 0x5865F2

// discordSession interface allows for mocking the Discord session in tests.
type discordSession interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()

	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	UserChannelPermissions(userID, channelID string, options ...discordgo.RequestOption) (int64, error)

	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessagesPinned(channelID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessageUnpin(channelID, messageID string, options ...discordgo.RequestOption) error

	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageReactionRemove(channelID, messageID, emojiID, userID string, options ...discordgo.RequestOption) error
	MessageReactionsRemoveAll(channelID, messageID string, options ...discordgo.RequestOption) error
}

// channelState is the read side of the gateway state cache.
type channelState interface {
	Channel(channelID string) (*discordgo.Channel, error)
}

// Config holds configuration for the Discord client.
type Config struct {
	// Token is the bot token from Discord Developer Portal (required)
	Token string

	// MaxConnectAttempts bounds the attempts to open the gateway on Start
	MaxConnectAttempts int

	// ConnectBackoff is the maximum backoff between connection attempts
	ConnectBackoff time.Duration

	// RateLimit configures rate limiting for API calls (operations per second)
	// Discord has different rate limits per endpoint, this is a general limit
	RateLimit float64

	// RateBurst configures the burst capacity for rate limiting
	RateBurst int

	// StateMessageLimit is how many messages per channel the gateway state
	// keeps, so edit and delete events carry the prior copy
	StateMessageLimit int

	// Logger is an optional slog.Logger instance
	Logger *slog.Logger

	// Metrics receives REST call latencies when set
	Metrics *observability.Metrics
}

// Validate checks if the configuration is valid and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return channels.ErrConfig("token is required", nil)
	}

	if c.MaxConnectAttempts == 0 {
		c.MaxConnectAttempts = 5
	}

	if c.ConnectBackoff == 0 {
		c.ConnectBackoff = 60 * time.Second
	}

	if c.RateLimit == 0 {
		c.RateLimit = 5 // Conservative default for Discord
	}

	if c.RateBurst == 0 {
		c.RateBurst = 10
	}

	if c.StateMessageLimit == 0 {
		c.StateMessageLimit = 1000
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return nil
}

// Client implements pins.Platform for Discord and forwards gateway events to
// an EventHandler.
type Client struct {
	config      Config
	session     discordSession
	state       channelState
	handler     EventHandler
	rateLimiter *channels.RateLimiter
	metrics     *observability.Metrics
	logger      *slog.Logger

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	selfID    string
	connected bool
	removers  []func()
}

var _ pins.Platform = (*Client)(nil)

// NewClient creates a new Discord client with the given configuration.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		config:      config,
		rateLimiter: channels.NewRateLimiter(config.RateLimit, config.RateBurst),
		metrics:     config.Metrics,
		logger:      config.Logger.With("component", "discord"),
	}, nil
}

// SetHandler sets the receiver of gateway events. It must be called before
// Start.
func (c *Client) SetHandler(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Start opens the gateway connection and registers event handlers.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return channels.ErrInternal("client already started", nil)
	}

	c.logger.Info("starting discord client", "rate_limit", c.config.RateLimit)

	// Create a new session if not already set (for non-test cases)
	if c.session == nil {
		dg, err := discordgo.New("Bot " + c.config.Token)
		if err != nil {
			return channels.ErrAuthentication("failed to create Discord session", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsGuildMessageReactions |
			discordgo.IntentsMessageContent
		dg.State.MaxMessageCount = c.config.StateMessageLimit
		c.session = dg
		c.state = dg.State
	}

	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.removers = append(c.removers,
		c.session.AddHandler(c.handleReady),
		c.session.AddHandler(c.handleDisconnect),
		c.session.AddHandler(c.handleMessageCreate),
		c.session.AddHandler(c.handleMessageUpdate),
		c.session.AddHandler(c.handleMessageDelete),
		c.session.AddHandler(c.handleReactionAdd),
	)

	if err := c.connectWithRetry(ctx); err != nil {
		c.cancel()
		return channels.ErrConnection("failed to connect to Discord", err)
	}

	c.connected = true
	c.logger.Info("discord client started")
	return nil
}

// Stop closes the gateway connection. In-flight handlers see a cancelled
// context.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	c.logger.Info("stopping discord client")
	if c.cancel != nil {
		c.cancel()
	}
	for _, remove := range c.removers {
		remove()
	}
	c.removers = nil
	c.connected = false

	if err := c.session.Close(); err != nil {
		c.logger.Error("failed to close Discord session", "error", err)
		return channels.ErrConnection("failed to close Discord session", err)
	}
	c.logger.Info("discord client stopped")
	return nil
}

// SelfID returns the bot user ID reported by the last Ready event.
func (c *Client) SelfID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfID
}

// Connected reports whether the gateway is open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Channel resolves a channel from the gateway state, falling back to a REST
// fetch when the state does not hold it.
func (c *Client) Channel(ctx context.Context, channelID string) (*models.Channel, error) {
	if c.state != nil {
		if ch, err := c.state.Channel(channelID); err == nil {
			return convertChannel(ch), nil
		}
	}

	var ch *discordgo.Channel
	err := c.call(ctx, "channel", func(opts ...discordgo.RequestOption) (err error) {
		ch, err = c.session.Channel(channelID, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return convertChannel(ch), nil
}

// TextChannels lists the guild's channels that can hold pins.
func (c *Client) TextChannels(ctx context.Context, guildID string) ([]*models.Channel, error) {
	var raw []*discordgo.Channel
	err := c.call(ctx, "guild_channels", func(opts ...discordgo.RequestOption) (err error) {
		raw, err = c.session.GuildChannels(guildID, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Channel, 0, len(raw))
	for _, ch := range raw {
		if converted := convertChannel(ch); converted.SupportsPins {
			out = append(out, converted)
		}
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, channelID, content string) (*models.Message, error) {
	var msg *discordgo.Message
	err := c.call(ctx, "send_message", func(opts ...discordgo.RequestOption) (err error) {
		msg, err = c.session.ChannelMessageSend(channelID, content, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return convertMessage(msg), nil
}

func (c *Client) SendPrompt(ctx context.Context, channelID string, prompt pins.Prompt) (*models.Message, error) {
	var msg *discordgo.Message
	err := c.call(ctx, "send_embed", func(opts ...discordgo.RequestOption) (err error) {
		msg, err = c.session.ChannelMessageSendEmbed(channelID, promptEmbed(prompt), opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return convertMessage(msg), nil
}

func (c *Client) EditPrompt(ctx context.Context, channelID, messageID string, prompt pins.Prompt) error {
	return c.call(ctx, "edit_embed", func(opts ...discordgo.RequestOption) error {
		_, err := c.session.ChannelMessageEditEmbed(channelID, messageID, promptEmbed(prompt), opts...)
		return err
	})
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (*models.Message, error) {
	var msg *discordgo.Message
	err := c.call(ctx, "fetch_message", func(opts ...discordgo.RequestOption) (err error) {
		msg, err = c.session.ChannelMessage(channelID, messageID, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return convertMessage(msg), nil
}

// FetchPinnedMessages keeps the order Discord returns, most recently pinned
// first.
func (c *Client) FetchPinnedMessages(ctx context.Context, channelID string) ([]*models.Message, error) {
	var raw []*discordgo.Message
	err := c.call(ctx, "fetch_pins", func(opts ...discordgo.RequestOption) (err error) {
		raw, err = c.session.ChannelMessagesPinned(channelID, opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Message, 0, len(raw))
	for _, m := range raw {
		if msg := convertMessage(m); msg != nil {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.call(ctx, "delete_message", func(opts ...discordgo.RequestOption) error {
		return c.session.ChannelMessageDelete(channelID, messageID, opts...)
	})
}

func (c *Client) UnpinMessage(ctx context.Context, channelID, messageID string) error {
	return c.call(ctx, "unpin", func(opts ...discordgo.RequestOption) error {
		return c.session.ChannelMessageUnpin(channelID, messageID, opts...)
	})
}

func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return c.call(ctx, "add_reaction", func(opts ...discordgo.RequestOption) error {
		return c.session.MessageReactionAdd(channelID, messageID, emoji, opts...)
	})
}

func (c *Client) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	return c.call(ctx, "remove_reaction", func(opts ...discordgo.RequestOption) error {
		return c.session.MessageReactionRemove(channelID, messageID, emoji, userID, opts...)
	})
}

func (c *Client) ClearReactions(ctx context.Context, channelID, messageID string) error {
	return c.call(ctx, "clear_reactions", func(opts ...discordgo.RequestOption) error {
		return c.session.MessageReactionsRemoveAll(channelID, messageID, opts...)
	})
}

// CanManageMessages reports whether userID holds Manage Messages in channelID.
func (c *Client) CanManageMessages(ctx context.Context, channelID, userID string) (bool, error) {
	var perms int64
	err := c.call(ctx, "permissions", func(opts ...discordgo.RequestOption) (err error) {
		perms, err = c.session.UserChannelPermissions(userID, channelID, opts...)
		return err
	})
	if err != nil {
		return false, err
	}
	return perms&discordgo.PermissionManageMessages != 0, nil
}

// call rate limits fn, times it and maps its failure onto a channels.Error.
func (c *Client) call(ctx context.Context, op string, fn func(opts ...discordgo.RequestOption) error) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.metrics.RecordPlatformRequest(op, string(channels.ErrCodeTimeout), 0)
		return channels.ErrTimeout("rate limit wait cancelled", err)
	}

	start := time.Now()
	err := classifyError(op, fn(discordgo.WithContext(ctx)))
	status := "ok"
	if err != nil {
		status = string(channels.GetErrorCode(err))
		if channels.IsTransient(err) {
			c.logger.Debug("discord request failed", "operation", op, "error", err)
		} else {
			c.logger.Warn("discord request rejected", "operation", op, "code", status, "error", err)
		}
	}
	c.metrics.RecordPlatformRequest(op, status, time.Since(start).Seconds())
	return err
}

func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return channels.NewError(channels.FromHTTPStatus(restErr.Response.StatusCode), op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return channels.ErrTimeout(op, err)
	}
	return channels.ErrConnection(op, err)
}

func (c *Client) connectWithRetry(ctx context.Context) error {
	var err error
	maxAttempts := c.config.MaxConnectAttempts

	for attempt := 0; attempt < maxAttempts; attempt++ {
		c.logger.Info("connecting to discord",
			"attempt", attempt+1,
			"max_attempts", maxAttempts)

		err = c.session.Open()
		if err == nil {
			return nil
		}

		backoff := calculateBackoff(attempt, c.config.ConnectBackoff)
		c.logger.Warn("connection failed, retrying",
			"error", err,
			"attempt", attempt+1,
			"backoff_ms", backoff.Milliseconds())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return channels.ErrConnection("failed to connect after retries", err)
}

func calculateBackoff(attempt int, maxWait time.Duration) time.Duration {
	// Exponential backoff: 1s, 2s, 4s, 8s, 16s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > maxWait {
		backoff = maxWait
	}
	return backoff
}

func promptEmbed(prompt pins.Prompt) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       prompt.Title,
		Description: prompt.Description,
		Color:       promptColor,
	}
}

// Conversion

func convertChannel(ch *discordgo.Channel) *models.Channel {
	if ch == nil {
		return nil
	}
	out := &models.Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}
	switch ch.Type {
	case discordgo.ChannelTypeGuildText:
		out.Kind, out.SupportsPins = models.ChannelKindText, true
	case discordgo.ChannelTypeGuildNews:
		out.Kind, out.SupportsPins = models.ChannelKindNews, true
	case discordgo.ChannelTypeGuildPublicThread, discordgo.ChannelTypeGuildPrivateThread, discordgo.ChannelTypeGuildNewsThread:
		out.Kind, out.SupportsPins = models.ChannelKindThread, true
	case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
		out.Kind = models.ChannelKindVoice
	case discordgo.ChannelTypeGuildCategory:
		out.Kind = models.ChannelKindCategory
	default:
		out.Kind = models.ChannelKindOther
	}
	return out
}

func convertMessage(m *discordgo.Message) *models.Message {
	if m == nil {
		return nil
	}
	msg := &models.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Pinned:    m.Pinned,
		CreatedAt: m.Timestamp,
		UpdatedAt: m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
	}
	if m.EditedTimestamp != nil {
		msg.UpdatedAt = *m.EditedTimestamp
	}
	return msg
}
