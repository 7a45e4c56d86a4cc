package pins

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/pinboard/internal/channels"
	"github.com/haasonsaas/pinboard/internal/storage"
	"github.com/haasonsaas/pinboard/pkg/models"
)

const (
	testGuild = "guild-1"
	testSelf  = "bot"
	testMod   = "mod-1"
)

type sentMessage struct {
	ChannelID string
	Content   string
}

type fakePlatform struct {
	mu sync.Mutex

	channels   map[string]*models.Channel
	messages   map[string]*models.Message
	pinned     map[string][]*models.Message
	moderators map[string]bool

	sendErr   func(channelID, content string) error
	unpinErr  func(channelID, messageID string) error
	pinnedErr error
	// pinnedGate, when set, blocks FetchPinnedMessages until closed.
	pinnedGate chan struct{}

	nextID       int
	channelCalls int
	pinnedCalls  int
	sent         []sentMessage
	prompts      []*models.Message
	promptBodies []Prompt
	edits        []Prompt
	deleted      []string
	unpinned     []string
	reactions    []string
	removed      []string
	cleared      []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		channels:   make(map[string]*models.Channel),
		messages:   make(map[string]*models.Message),
		pinned:     make(map[string][]*models.Message),
		moderators: map[string]bool{testMod: true},
	}
}

func textChannel(id string) *models.Channel {
	return &models.Channel{ID: id, GuildID: testGuild, Name: id, Kind: models.ChannelKindText, SupportsPins: true}
}

func (f *fakePlatform) addChannel(ch *models.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[ch.ID] = ch
}

func (f *fakePlatform) addMessage(msg *models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[msg.ID] = msg.Clone()
	if msg.Pinned {
		f.pinned[msg.ChannelID] = append(f.pinned[msg.ChannelID], msg.Clone())
	}
}

// pinMany adds n pinned messages to channelID, oldest first.
func (f *fakePlatform) pinMany(channelID string, n int) []*models.Message {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*models.Message, 0, n)
	for i := 0; i < n; i++ {
		msg := &models.Message{
			ID:        fmt.Sprintf("%s-pin-%02d", channelID, i),
			ChannelID: channelID,
			GuildID:   testGuild,
			AuthorID:  "author",
			Content:   fmt.Sprintf("pinned %d", i),
			Pinned:    true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		f.addMessage(msg)
		out = append(out, msg)
	}
	return out
}

func (f *fakePlatform) SelfID() string { return testSelf }

func (f *fakePlatform) Channel(ctx context.Context, channelID string) (*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelCalls++
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, channels.ErrNotFound("unknown channel", nil)
	}
	cp := *ch
	return &cp, nil
}

func (f *fakePlatform) TextChannels(ctx context.Context, guildID string) ([]*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Channel
	for _, ch := range f.channels {
		if ch.GuildID == guildID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakePlatform) SendMessage(ctx context.Context, channelID, content string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		if err := f.sendErr(channelID, content); err != nil {
			return nil, err
		}
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, Content: content})
	return &models.Message{ID: fmt.Sprintf("sent-%d", f.nextID), ChannelID: channelID, Content: content, AuthorID: testSelf}, nil
}

func (f *fakePlatform) SendPrompt(ctx context.Context, channelID string, prompt Prompt) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg := &models.Message{ID: fmt.Sprintf("prompt-%d", f.nextID), ChannelID: channelID, AuthorID: testSelf}
	f.prompts = append(f.prompts, msg)
	f.promptBodies = append(f.promptBodies, prompt)
	return msg, nil
}

func (f *fakePlatform) EditPrompt(ctx context.Context, channelID, messageID string, prompt Prompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, prompt)
	return nil
}

func (f *fakePlatform) FetchMessage(ctx context.Context, channelID, messageID string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, channels.ErrNotFound("unknown message", nil)
	}
	return msg.Clone(), nil
}

func (f *fakePlatform) FetchPinnedMessages(ctx context.Context, channelID string) ([]*models.Message, error) {
	f.mu.Lock()
	f.pinnedCalls++
	gate := f.pinnedGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pinnedErr != nil {
		return nil, f.pinnedErr
	}
	pinned := f.pinned[channelID]
	out := make([]*models.Message, 0, len(pinned))
	for i := len(pinned) - 1; i >= 0; i-- {
		out = append(out, pinned[i].Clone())
	}
	return out, nil
}

func (f *fakePlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	delete(f.messages, messageID)
	return nil
}

func (f *fakePlatform) UnpinMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unpinErr != nil {
		if err := f.unpinErr(channelID, messageID); err != nil {
			return err
		}
	}
	f.unpinned = append(f.unpinned, messageID)
	kept := f.pinned[channelID][:0]
	for _, msg := range f.pinned[channelID] {
		if msg.ID != messageID {
			kept = append(kept, msg)
		}
	}
	f.pinned[channelID] = kept
	if msg, ok := f.messages[messageID]; ok {
		msg.Pinned = false
	}
	return nil
}

func (f *fakePlatform) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, emoji)
	return nil
}

func (f *fakePlatform) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, emoji)
	return nil
}

func (f *fakePlatform) ClearReactions(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, messageID)
	return nil
}

func (f *fakePlatform) CanManageMessages(ctx context.Context, channelID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moderators[userID], nil
}

func (f *fakePlatform) snapshot(fn func(f *fakePlatform)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newTestService(t *testing.T, fp *fakePlatform, mutate ...func(*Config)) (*Service, storage.StoreSet) {
	t.Helper()
	cfg := Config{
		HomeGuildID:   testGuild,
		PromptTimeout: 2 * time.Second,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	stores := storage.NewMemoryStores()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewService(cfg, fp, stores, WithLogger(logger))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, stores
}

func withPromptTimeout(d time.Duration) func(*Config) {
	return func(cfg *Config) { cfg.PromptTimeout = d }
}

// awaitPrompt waits for the nth prompt to be posted and for the service to
// subscribe to its reactions.
func awaitPrompt(t *testing.T, svc *Service, fp *fakePlatform, n int) *models.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var msg *models.Message
		fp.snapshot(func(f *fakePlatform) {
			if len(f.prompts) >= n {
				msg = f.prompts[n-1]
			}
		})
		if msg != nil && svc.hub.subscribers(msg.ID) > 0 {
			return msg
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("prompt %d was never posted", n)
	return nil
}

func react(svc *Service, prompt *models.Message, userID, emoji string) {
	svc.HandleReactionAdd(context.Background(), ReactionEvent{
		GuildID:   testGuild,
		ChannelID: prompt.ChannelID,
		MessageID: prompt.ID,
		UserID:    userID,
		Emoji:     emoji,
	})
}
