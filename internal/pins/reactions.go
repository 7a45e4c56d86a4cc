package pins

import (
	"context"
	"sync"
	"time"
)

const reactionBuffer = 16

// reactionHub fans reaction events out to goroutines waiting on a prompt.
// Delivery never blocks the gateway: a subscriber whose buffer is full
// misses the event.
type reactionHub struct {
	mu   sync.Mutex
	next uint64
	subs map[string]map[uint64]chan ReactionEvent
}

func newReactionHub() *reactionHub {
	return &reactionHub{subs: make(map[string]map[uint64]chan ReactionEvent)}
}

// subscribe registers interest in reactions on messageID. The returned
// function must be called to release the subscription.
func (h *reactionHub) subscribe(messageID string) (<-chan ReactionEvent, func()) {
	ch := make(chan ReactionEvent, reactionBuffer)

	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[messageID] == nil {
		h.subs[messageID] = make(map[uint64]chan ReactionEvent)
	}
	h.subs[messageID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[messageID], id)
			if len(h.subs[messageID]) == 0 {
				delete(h.subs, messageID)
			}
		})
	}
}

// publish delivers ev to every subscriber of its message and reports how
// many received it.
func (h *reactionHub) publish(ev ReactionEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, ch := range h.subs[ev.MessageID] {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// subscribers returns the number of open subscriptions for a message.
func (h *reactionHub) subscribers(messageID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[messageID])
}

// waitForReaction blocks until qualifies accepts an event, the timeout
// elapses or ctx is cancelled. Timeout and cancellation both return
// ErrPromptAbandoned.
func waitForReaction(ctx context.Context, events <-chan ReactionEvent, timeout time.Duration, qualifies func(context.Context, ReactionEvent) bool) (ReactionEvent, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-events:
			if qualifies(ctx, ev) {
				return ev, nil
			}
		case <-timer.C:
			return ReactionEvent{}, ErrPromptAbandoned
		case <-ctx.Done():
			return ReactionEvent{}, ErrPromptAbandoned
		}
	}
}
