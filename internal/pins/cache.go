package pins

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/haasonsaas/pinboard/internal/observability"
)

// FetchState describes how MaybeFetch resolved.
type FetchState int

const (
	// FetchUnknown means the pinned set could not be determined.
	FetchUnknown FetchState = iota
	// FetchCached means the set came from an earlier successful fetch.
	FetchCached
	// FetchFresh means the set was fetched by this call.
	FetchFresh
	// FetchInProgress means another caller already requested the channel.
	FetchInProgress
)

func (s FetchState) String() string {
	switch s {
	case FetchCached:
		return "cached"
	case FetchFresh:
		return "fresh"
	case FetchInProgress:
		return "in-progress"
	default:
		return "unknown"
	}
}

// FetchResult is the outcome of MaybeFetch. MessageIDs is only meaningful
// when Known reports true.
type FetchResult struct {
	State      FetchState
	MessageIDs []string
}

// Known reports whether the result carries a pinned set.
func (r FetchResult) Known() bool {
	return r.State == FetchCached || r.State == FetchFresh
}

// Count is the number of tracked pins, or -1 when unknown.
func (r FetchResult) Count() int {
	if !r.Known() {
		return -1
	}
	return len(r.MessageIDs)
}

// PinCache tracks the IDs of pinned messages per channel. A channel is
// populated at most once per process unless Invalidate is called.
type PinCache struct {
	platform Platform
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu        sync.Mutex
	store     map[string]map[string]struct{}
	requested map[string]struct{}
}

// NewPinCache creates an empty cache backed by platform.
func NewPinCache(platform Platform, logger *slog.Logger, metrics *observability.Metrics) *PinCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PinCache{
		platform:  platform,
		logger:    logger.With("component", "pin-cache"),
		metrics:   metrics,
		store:     make(map[string]map[string]struct{}),
		requested: make(map[string]struct{}),
	}
}

// Add tracks messageIDs for a channel that has already been populated.
// It never populates a channel.
func (c *PinCache) Add(channelID string, messageIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.store[channelID]
	if !ok {
		return
	}
	for _, id := range messageIDs {
		set[id] = struct{}{}
	}
	c.metrics.SetTrackedPins(channelID, len(set))
}

// Remove stops tracking messageIDs. Unknown channels and IDs are ignored.
func (c *PinCache) Remove(channelID string, messageIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.store[channelID]
	if !ok {
		return
	}
	for _, id := range messageIDs {
		delete(set, id)
	}
	c.metrics.SetTrackedPins(channelID, len(set))
}

// MaybeFetch returns the tracked pins for a channel, fetching them from the
// platform the first time the channel is seen. The channel is marked as
// requested before the fetch starts, so concurrent callers observe
// FetchInProgress instead of issuing a second fetch. A failed fetch leaves
// the mark in place and yields FetchUnknown.
//
// ErrChannelNotPinnable is returned when the channel cannot hold pins.
func (c *PinCache) MaybeFetch(ctx context.Context, channelID string) (FetchResult, error) {
	c.mu.Lock()
	if set, ok := c.store[channelID]; ok {
		ids := sortedIDs(set)
		c.mu.Unlock()
		c.metrics.RecordCacheFetch(FetchCached.String())
		return FetchResult{State: FetchCached, MessageIDs: ids}, nil
	}
	if _, ok := c.requested[channelID]; ok {
		c.mu.Unlock()
		c.metrics.RecordCacheFetch(FetchInProgress.String())
		return FetchResult{State: FetchInProgress}, nil
	}
	c.requested[channelID] = struct{}{}
	c.mu.Unlock()

	channel, err := c.platform.Channel(ctx, channelID)
	if err != nil {
		c.logger.Error("failed to resolve channel", "channel_id", channelID, "error", err)
		c.metrics.RecordCacheFetch(FetchUnknown.String())
		return FetchResult{State: FetchUnknown}, nil
	}
	if !channel.SupportsPins {
		c.mu.Lock()
		delete(c.requested, channelID)
		c.mu.Unlock()
		return FetchResult{}, fmt.Errorf("channel %s (%s): %w", channelID, channel.Kind, ErrChannelNotPinnable)
	}

	pinned, err := c.platform.FetchPinnedMessages(ctx, channelID)
	if err != nil {
		c.logger.Error("failed to fetch pinned messages", "channel_id", channelID, "error", err)
		c.metrics.RecordCacheFetch(FetchUnknown.String())
		return FetchResult{State: FetchUnknown}, nil
	}

	set := make(map[string]struct{}, len(pinned))
	for _, msg := range pinned {
		set[msg.ID] = struct{}{}
	}

	c.mu.Lock()
	if _, stillRequested := c.requested[channelID]; !stillRequested {
		// Invalidated while the fetch was running; the result is stale.
		c.mu.Unlock()
		c.metrics.RecordCacheFetch(FetchUnknown.String())
		return FetchResult{State: FetchUnknown}, nil
	}
	c.store[channelID] = set
	ids := sortedIDs(set)
	c.mu.Unlock()

	c.metrics.SetTrackedPins(channelID, len(ids))
	c.metrics.RecordCacheFetch(FetchFresh.String())
	c.logger.Debug("populated pin cache", "channel_id", channelID, "count", len(ids))
	return FetchResult{State: FetchFresh, MessageIDs: ids}, nil
}

// Invalidate forgets a channel so the next MaybeFetch fetches it again.
func (c *PinCache) Invalidate(channelID string) {
	c.mu.Lock()
	delete(c.store, channelID)
	delete(c.requested, channelID)
	c.mu.Unlock()
	c.metrics.DeleteTrackedPins(channelID)
}

// Warm populates every listed channel. Channels that cannot hold pins are
// logged and skipped.
func (c *PinCache) Warm(ctx context.Context, channelIDs []string) {
	for _, id := range channelIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.MaybeFetch(ctx, id); err != nil {
			c.logger.Warn("skipping channel during warm up", "channel_id", id, "error", err)
		}
	}
}

// Count returns the number of tracked pins for a populated channel.
func (c *PinCache) Count(channelID string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.store[channelID]
	return len(set), ok
}

// Populated reports whether a channel has a tracked pin set.
func (c *PinCache) Populated(channelID string) bool {
	_, ok := c.Count(channelID)
	return ok
}

// Requested reports whether a channel has been marked for fetching.
func (c *PinCache) Requested(channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.requested[channelID]
	return ok
}

// Snapshot returns the tracked pin count of every populated channel.
func (c *PinCache) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.store))
	for id, set := range c.store {
		out[id] = len(set)
	}
	return out
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
