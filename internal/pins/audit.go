package pins

import "sort"

// capacityWarningPercent is the fill level at which the audit warns.
const capacityWarningPercent = 90

// ChannelCapacity is one channel's pin usage as seen by the audit.
type ChannelCapacity struct {
	ChannelID string
	Pins      int
}

// Full reports whether the channel has hit the platform pin limit.
func (c ChannelCapacity) Full() bool {
	return c.Pins >= MaxPinsPerChannel
}

// RunAudit publishes the tracked pin count of every populated channel and
// returns the channels at or above the warning threshold. It reads only the
// cache and never calls the platform.
func (s *Service) RunAudit() []ChannelCapacity {
	snapshot := s.cache.Snapshot()
	threshold := MaxPinsPerChannel * capacityWarningPercent / 100

	s.mu.Lock()
	for channelID := range s.audited {
		if _, ok := snapshot[channelID]; !ok {
			s.metrics.DeleteTrackedPins(channelID)
		}
	}
	s.audited = make(map[string]struct{}, len(snapshot))
	for channelID := range snapshot {
		s.audited[channelID] = struct{}{}
	}
	s.mu.Unlock()

	var crowded []ChannelCapacity
	for channelID, count := range snapshot {
		s.metrics.SetTrackedPins(channelID, count)
		if count >= threshold {
			crowded = append(crowded, ChannelCapacity{ChannelID: channelID, Pins: count})
		}
	}
	sort.Slice(crowded, func(i, j int) bool { return crowded[i].ChannelID < crowded[j].ChannelID })

	for _, c := range crowded {
		s.logger.Warn("channel is close to the pin limit",
			"channel_id", c.ChannelID,
			"pins", c.Pins,
			"limit", MaxPinsPerChannel,
			"full", c.Full())
	}
	s.logger.Debug("pin audit complete", "channels", len(snapshot), "crowded", len(crowded))
	return crowded
}
