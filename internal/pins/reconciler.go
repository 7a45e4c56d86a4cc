package pins

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/haasonsaas/pinboard/internal/channels"
	"github.com/haasonsaas/pinboard/internal/storage"
	"github.com/haasonsaas/pinboard/pkg/models"
)

// HandleMessageCreate mirrors a new message and dispatches prefix commands.
// Messages from protected users are not mirrored.
func (s *Service) HandleMessageCreate(ctx context.Context, msg *models.Message) {
	if msg == nil || msg.ID == "" {
		return
	}
	if msg.GuildID != s.cfg.HomeGuildID {
		s.logger.Debug("ignoring message outside home guild", "guild_id", msg.GuildID)
		s.metrics.RecordEvent("create", "ignored")
		return
	}
	if msg.AuthorID == s.platform.SelfID() {
		return
	}

	ctx, span := s.tracer.Start(ctx, "pins.message_create", "channel_id", msg.ChannelID, "message_id", msg.ID)
	defer span.End()

	s.mirror(ctx, msg)

	if s.parser.IsCommand(msg.Content) {
		s.dispatchCommand(ctx, msg)
	}
}

func (s *Service) mirror(ctx context.Context, msg *models.Message) {
	protected, err := s.privacy.IsProtected(ctx, msg.AuthorID)
	if err != nil {
		s.logger.Error("failed to check privacy setting", "user_id", msg.AuthorID, "error", err)
		s.metrics.RecordEvent("create", "error")
		return
	}
	if protected {
		s.metrics.RecordEvent("create", "protected")
		return
	}

	err = s.messages.Create(ctx, msg)
	switch {
	case err == nil:
		s.metrics.RecordEvent("create", "mirrored")
	case errors.Is(err, storage.ErrAlreadyExists):
		s.metrics.RecordEvent("create", "duplicate")
	default:
		s.logger.Error("failed to mirror message", "message_id", msg.ID, "error", err)
		s.metrics.RecordEvent("create", "error")
	}
}

// HandleMessageEdit reconciles the mirror and the pin cache with an edit.
//
// The prior state comes from the mirror, then the gateway cache, then a live
// fetch. A content change only updates a mirrored copy. A transition to
// pinned copies the message to every linked pinboard and then unpins it; if
// the unpin is refused the channel is checked for migration instead. A
// transition to unpinned drops the message from the cache.
func (s *Service) HandleMessageEdit(ctx context.Context, ev EditEvent) {
	channel, ok := s.eventChannel(ctx, "edit", ev.GuildID, ev.ChannelID)
	if !ok {
		return
	}

	ctx, span := s.tracer.Start(ctx, "pins.message_edit", "channel_id", ev.ChannelID, "message_id", ev.MessageID)
	defer span.End()
	logger := s.logger.With("channel_id", ev.ChannelID, "message_id", ev.MessageID)

	prior, ok := s.priorState(ctx, logger, ev)
	if !ok {
		logger.Warn("ignoring edit without a prior message state")
		s.metrics.RecordEvent("edit", "no-prior")
		return
	}

	current, err := s.platform.FetchMessage(ctx, ev.ChannelID, ev.MessageID)
	if err != nil {
		logger.Error("failed to fetch edited message", "error", err)
		s.tracer.RecordError(span, err)
		s.metrics.RecordEvent("edit", "error")
		return
	}
	s.tracer.SetAttributes(span, "prior_source", prior.Source.String())

	switch {
	case prior.Content != current.Content:
		if !prior.Mirrored() {
			s.metrics.RecordEvent("edit", "content-unmirrored")
			return
		}
		updated := prior.Clone()
		updated.Content = current.Content
		updated.UpdatedAt = time.Now()
		if err := s.messages.Update(ctx, updated); err != nil {
			logger.Error("failed to update mirrored content", "error", err)
			s.metrics.RecordEvent("edit", "error")
			return
		}
		s.metrics.RecordEvent("edit", "content")
	case !prior.Pinned && current.Pinned:
		s.processPinned(ctx, logger, channel, prior, current)
	case prior.Pinned && !current.Pinned:
		s.cache.Remove(channel.ID, current.ID)
		s.metrics.RecordEvent("edit", "unpinned")
	default:
		s.metrics.RecordEvent("edit", "unchanged")
	}
}

func (s *Service) priorState(ctx context.Context, logger *slog.Logger, ev EditEvent) (KnownMessage, bool) {
	stored, err := s.messages.Get(ctx, ev.MessageID)
	switch {
	case err == nil:
		return MirroredMessage(stored), true
	case !errors.Is(err, storage.ErrNotFound):
		logger.Error("failed to read mirrored message", "error", err)
	}

	if ev.Cached != nil {
		return LiveMessage(ev.Cached), true
	}

	live, err := s.platform.FetchMessage(ctx, ev.ChannelID, ev.MessageID)
	if err != nil {
		logger.Error("failed to fetch message", "error", err)
		return KnownMessage{}, false
	}
	return LiveMessage(live), true
}

func (s *Service) processPinned(ctx context.Context, logger *slog.Logger, channel *models.Channel, prior KnownMessage, current *models.Message) {
	pinboardIDs, err := s.pinboards.PinboardsFor(ctx, channel.ID)
	if err != nil {
		logger.Error("failed to list linked pinboards", "error", err)
		s.metrics.RecordEvent("edit", "error")
		return
	}
	if len(pinboardIDs) == 0 {
		logger.Warn("ignoring pin in channel without linked pinboards")
		s.metrics.RecordEvent("edit", "pinned-unlinked")
		return
	}

	if !s.broadcast(ctx, logger, prior.Content, pinboardIDs) {
		s.metrics.RecordEvent("edit", "broadcast-failed")
		return
	}

	if prior.Mirrored() {
		if err := s.messages.Delete(ctx, prior.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Error("failed to drop stale mirror", "error", err)
		}
	}

	err = s.platform.UnpinMessage(ctx, channel.ID, current.ID)
	switch {
	case err == nil:
		s.cache.Add(channel.ID, current.ID)
		s.metrics.RecordEvent("edit", "pinned")
	case channels.IsPermissionDenied(err):
		logger.Warn("not allowed to unpin broadcast message, checking channel capacity")
		s.metrics.RecordEvent("edit", "unpin-denied")
		// Still pinned, so the count the trigger reads must include it.
		s.cache.Add(channel.ID, current.ID)
		if _, err := s.MaybeMigrate(ctx, channel.ID); err != nil {
			logger.Error("fallback migration check failed", "error", err)
		}
	default:
		logger.Error("failed to unpin broadcast message", "error", err)
		s.metrics.RecordEvent("edit", "error")
	}
}

// broadcast posts content to every pinboard and reports whether all posts
// succeeded. A failure does not stop the remaining posts.
func (s *Service) broadcast(ctx context.Context, logger *slog.Logger, content string, pinboardIDs []string) bool {
	ok := true
	for _, id := range pinboardIDs {
		if _, err := s.platform.SendMessage(ctx, id, content); err != nil {
			logger.Error("failed to post to pinboard", "pinboard_id", id, "error", err)
			ok = false
		}
	}
	return ok
}

// HandleMessageDelete removes a deleted message from the mirror and the
// cache. Messages that were never mirrored are ignored entirely. Platform
// failures, including an unresolvable channel, never block mirror cleanup.
func (s *Service) HandleMessageDelete(ctx context.Context, ev DeleteEvent) {
	exists, err := s.messages.Exists(ctx, ev.MessageID)
	if err != nil {
		s.logger.Error("failed to check mirrored message", "message_id", ev.MessageID, "error", err)
		s.metrics.RecordEvent("delete", "error")
		return
	}
	if !exists {
		s.metrics.RecordEvent("delete", "untracked")
		return
	}

	if !s.inHomeGuild("delete", ev.GuildID) {
		return
	}

	ctx, span := s.tracer.Start(ctx, "pins.message_delete", "channel_id", ev.ChannelID, "message_id", ev.MessageID)
	defer span.End()
	logger := s.logger.With("channel_id", ev.ChannelID, "message_id", ev.MessageID)

	channel, err := s.platform.Channel(ctx, ev.ChannelID)
	switch {
	case err != nil:
		logger.Debug("deleted message's channel unavailable, cleaning up mirror only", "error", err)
	case !channel.SupportsPins:
		logger.Debug("ignoring event in channel without pins", "event", "delete", "kind", channel.Kind)
		s.metrics.RecordEvent("delete", "ignored")
		return
	}

	msg := ev.Cached
	if msg == nil {
		fetched, err := s.platform.FetchMessage(ctx, ev.ChannelID, ev.MessageID)
		if err != nil {
			logger.Debug("deleted message no longer fetchable", "error", err)
		} else {
			msg = fetched
		}
	}
	if msg != nil {
		if err := s.platform.DeleteMessage(ctx, ev.ChannelID, msg.ID); err != nil {
			if channels.IsNotFound(err) {
				logger.Debug("message already gone from platform")
			} else {
				logger.Error("failed to delete message", "error", err)
			}
		}
	}

	if err := s.messages.Delete(ctx, ev.MessageID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Error("failed to delete mirrored message", "error", err)
		s.metrics.RecordEvent("delete", "error")
		return
	}
	s.cache.Remove(ev.ChannelID, ev.MessageID)
	s.metrics.RecordEvent("delete", "removed")
}

// eventChannel resolves the channel of a gateway event and filters out
// events outside the home guild or in channels that cannot hold pins.
func (s *Service) eventChannel(ctx context.Context, event, guildID, channelID string) (*models.Channel, bool) {
	if !s.inHomeGuild(event, guildID) {
		return nil, false
	}
	channel, err := s.platform.Channel(ctx, channelID)
	if err != nil {
		s.logger.Error("failed to resolve event channel", "event", event, "channel_id", channelID, "error", err)
		s.metrics.RecordEvent(event, "error")
		return nil, false
	}
	if !channel.SupportsPins {
		s.logger.Debug("ignoring event in channel without pins", "event", event, "channel_id", channelID, "kind", channel.Kind)
		s.metrics.RecordEvent(event, "ignored")
		return nil, false
	}
	return channel, true
}

func (s *Service) inHomeGuild(event, guildID string) bool {
	if guildID == s.cfg.HomeGuildID {
		return true
	}
	s.logger.Debug("ignoring event outside home guild", "event", event, "guild_id", guildID)
	s.metrics.RecordEvent(event, "ignored")
	return false
}
