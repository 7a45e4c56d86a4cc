package pins

import (
	"context"
	"fmt"

	"github.com/haasonsaas/pinboard/pkg/models"
)

// TriggerOutcome is how a MaybeMigrate call ended.
type TriggerOutcome string

const (
	OutcomeBelowThreshold TriggerOutcome = "below-threshold"
	OutcomeManual         TriggerOutcome = "manual"
	OutcomeDeclined       TriggerOutcome = "declined"
	OutcomeNoPinboards    TriggerOutcome = "no-pinboards"
	OutcomeNoSelection    TriggerOutcome = "no-selection"
	OutcomeMigrated       TriggerOutcome = "migrated"
)

var capacityPrompt = Prompt{
	Title:       "You have reached the maximum number of pinned messages for this channel",
	Description: "Would you like to migrate these messages to a pinboard?",
}

// MaybeMigrate runs after a message becomes pinned in channelID. It only acts
// when the tracked pin count is exactly MaxPinsPerChannel; an unknown or in
// progress count never triggers. The stored migration mode then decides
// whether to stop, ask for confirmation, or go straight to the pinboard
// picker. A chosen pinboard receives the channel's current pins.
//
// Errors are returned for a channel that cannot hold pins and for storage
// failures; transport failures during the exchange are logged.
func (s *Service) MaybeMigrate(ctx context.Context, channelID string) (outcome TriggerOutcome, err error) {
	ctx, span := s.tracer.Start(ctx, "pins.maybe_migrate", "channel_id", channelID)
	defer func() {
		s.tracer.SetAttributes(span, "outcome", string(outcome))
		s.tracer.RecordError(span, err)
		span.End()
		if err != nil {
			s.metrics.RecordTrigger("error")
		} else {
			s.metrics.RecordTrigger(string(outcome))
		}
	}()

	result, err := s.cache.MaybeFetch(ctx, channelID)
	if err != nil {
		return "", err
	}
	if result.Count() != MaxPinsPerChannel {
		return OutcomeBelowThreshold, nil
	}

	mode, err := s.settings.MigrationMode(ctx)
	if err != nil {
		return "", fmt.Errorf("read migration mode: %w", err)
	}
	logger := s.logger.With("channel_id", channelID, "mode", mode.String())

	switch mode {
	case models.MigrationConfirmation:
		accepted, err := s.Confirm(ctx, channelID, capacityPrompt)
		if err != nil {
			logger.Error("failed to request confirmation", "error", err)
			return OutcomeDeclined, nil
		}
		if !accepted {
			return OutcomeDeclined, nil
		}
	case models.MigrationAutomatic:
	default:
		logger.Debug("channel at pin capacity, migration left to moderators")
		return OutcomeManual, nil
	}

	candidates, err := s.linkedPinboards(ctx, channelID)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		logger.Warn("channel at pin capacity has no linked pinboards")
		return OutcomeNoPinboards, nil
	}

	destination, err := s.SelectPinboard(ctx, channelID, candidates, "")
	if err != nil {
		logger.Error("failed to run pinboard picker", "error", err)
		return OutcomeNoSelection, nil
	}
	if destination == nil {
		return OutcomeNoSelection, nil
	}

	pinned, err := s.platform.FetchPinnedMessages(ctx, channelID)
	if err != nil {
		logger.Error("failed to fetch pins to migrate", "error", err)
		return OutcomeNoSelection, nil
	}
	s.Migrate(ctx, channelID, destination, pinned)
	return OutcomeMigrated, nil
}

// linkedPinboards resolves the pinboard channels linked to sourceChannelID.
// Channels that cannot be fetched or cannot hold messages are skipped.
func (s *Service) linkedPinboards(ctx context.Context, sourceChannelID string) ([]*models.Channel, error) {
	ids, err := s.pinboards.PinboardsFor(ctx, sourceChannelID)
	if err != nil {
		return nil, fmt.Errorf("list linked pinboards: %w", err)
	}
	channels := make([]*models.Channel, 0, len(ids))
	for _, id := range ids {
		ch, err := s.platform.Channel(ctx, id)
		if err != nil {
			s.logger.Warn("ignoring unresolvable pinboard", "pinboard_id", id, "error", err)
			continue
		}
		if !ch.SupportsPins {
			s.logger.Warn("ignoring pinboard of unsupported channel type", "pinboard_id", id, "kind", ch.Kind)
			continue
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
