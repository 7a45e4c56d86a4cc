package pins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Confirm posts prompt in channelID with accept and reject reactions and
// waits for a moderator to answer. It reports true only on accept.
//
// A reaction counts when it is one of the two answers, was not added by the
// bot, and comes from a user who can manage messages in the channel. On
// accept the prompt stays and its reactions are cleared. On reject, timeout
// or cancellation the prompt is deleted and false is returned with a nil
// error. An error is only returned when the prompt could not be posted.
func (s *Service) Confirm(ctx context.Context, channelID string, prompt Prompt) (bool, error) {
	logger := s.sessionLogger("confirm", channelID)

	msg, err := s.platform.SendPrompt(ctx, channelID, prompt)
	if err != nil {
		s.metrics.RecordPrompt("confirm", "error")
		return false, fmt.Errorf("post confirmation prompt: %w", err)
	}

	events, unsubscribe := s.hub.subscribe(msg.ID)
	defer unsubscribe()

	for _, emoji := range []string{EmojiAccept, EmojiReject} {
		if err := s.platform.AddReaction(ctx, channelID, msg.ID, emoji); err != nil {
			logger.Warn("failed to add reaction", "emoji", emoji, "error", err)
		}
	}

	ev, err := waitForReaction(ctx, events, s.cfg.PromptTimeout, func(ctx context.Context, ev ReactionEvent) bool {
		if ev.Emoji != EmojiAccept && ev.Emoji != EmojiReject {
			return false
		}
		return s.canModerate(ctx, logger, channelID, ev.UserID)
	})

	cleanup := context.WithoutCancel(ctx)
	switch {
	case errors.Is(err, ErrPromptAbandoned):
		logger.Info("confirmation abandoned")
		s.deletePrompt(cleanup, logger, channelID, msg.ID)
		s.metrics.RecordPrompt("confirm", "abandoned")
		return false, nil
	case ev.Emoji == EmojiReject:
		logger.Info("confirmation rejected", "user_id", ev.UserID)
		s.deletePrompt(cleanup, logger, channelID, msg.ID)
		s.metrics.RecordPrompt("confirm", "rejected")
		return false, nil
	}

	logger.Info("confirmation accepted", "user_id", ev.UserID)
	if err := s.platform.ClearReactions(cleanup, channelID, msg.ID); err != nil {
		logger.Warn("failed to clear reactions", "error", err)
	}
	s.metrics.RecordPrompt("confirm", "accepted")
	return true, nil
}

// canModerate reports whether userID may answer prompts in channelID. The bot
// never qualifies, and permission lookup failures count as a refusal.
func (s *Service) canModerate(ctx context.Context, logger *slog.Logger, channelID, userID string) bool {
	if userID == "" || userID == s.platform.SelfID() {
		return false
	}
	ok, err := s.platform.CanManageMessages(ctx, channelID, userID)
	if err != nil {
		logger.Warn("permission check failed", "user_id", userID, "error", err)
		return false
	}
	return ok
}

func (s *Service) deletePrompt(ctx context.Context, logger *slog.Logger, channelID, messageID string) {
	if err := s.platform.DeleteMessage(ctx, channelID, messageID); err != nil {
		logger.Warn("failed to delete prompt", "message_id", messageID, "error", err)
	}
}
