package pins

import (
	"context"

	"github.com/haasonsaas/pinboard/internal/observability"
	"github.com/haasonsaas/pinboard/pkg/models"
)

// MigrationReport aggregates the outcome of one migration run.
type MigrationReport struct {
	Attempted int
	Migrated  int
	Failed    int
}

// Migrate copies messages into destination and unpins each original after
// its copy is posted. messages are in platform order, most recently pinned
// first, and are replayed in reverse so the destination reads in pin order. A message whose copy fails to post is
// left pinned. Failures are logged and never stop the run. Unpinned messages
// are dropped from the cache.
func (s *Service) Migrate(ctx context.Context, sourceChannelID string, destination *models.Channel, messages []*models.Message) MigrationReport {
	ctx, span := s.tracer.Start(ctx, "pins.migrate",
		"source_channel_id", sourceChannelID,
		"pinboard_id", destination.ID,
		"messages", len(messages))
	defer span.End()

	logger := s.logger.With("source_channel_id", sourceChannelID, "pinboard_id", destination.ID)
	if traceID := observability.GetTraceID(ctx); traceID != "" {
		logger = logger.With("trace_id", traceID)
	}

	ordered := make([]*models.Message, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i] != nil {
			ordered = append(ordered, messages[i])
		}
	}

	report := MigrationReport{Attempted: len(ordered)}
	var unpinned []string
	for _, msg := range ordered {
		if _, err := s.platform.SendMessage(ctx, destination.ID, msg.Content); err != nil {
			logger.Error("failed to copy pinned message", "message_id", msg.ID, "error", err)
			s.tracer.AddEvent(span, "copy_failed", "message_id", msg.ID)
			report.Failed++
			continue
		}
		channelID := msg.ChannelID
		if channelID == "" {
			channelID = sourceChannelID
		}
		if err := s.platform.UnpinMessage(ctx, channelID, msg.ID); err != nil {
			logger.Error("failed to unpin migrated message", "message_id", msg.ID, "error", err)
			s.tracer.AddEvent(span, "unpin_failed", "message_id", msg.ID)
			report.Failed++
			continue
		}
		unpinned = append(unpinned, msg.ID)
		report.Migrated++
	}

	s.cache.Remove(sourceChannelID, unpinned...)
	s.metrics.RecordMigration(report.Migrated, report.Failed)
	s.tracer.SetAttributes(span, "migrated", report.Migrated, "failed", report.Failed)
	logger.Info("migration finished",
		"attempted", report.Attempted,
		"migrated", report.Migrated,
		"failed", report.Failed)
	return report
}
