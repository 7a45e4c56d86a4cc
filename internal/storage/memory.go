package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/pinboard/pkg/models"
)

// NewMemoryStores returns a StoreSet backed entirely by process memory.
func NewMemoryStores() StoreSet {
	messages := NewMemoryMessageStore()
	pinboards := NewMemoryPinboardStore()
	settings := NewMemorySettingsStore()
	privacy := NewMemoryPrivacyStore()
	return StoreSet{
		Messages:  messages,
		Pinboards: pinboards,
		Settings:  settings,
		Privacy:   privacy,
		pruner: func(context.Context) error {
			messages.reset()
			pinboards.reset()
			settings.reset()
			privacy.reset()
			return nil
		},
	}
}

// MemoryMessageStore provides an in-memory MessageStore.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string]*models.Message
}

// NewMemoryMessageStore creates an in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{messages: make(map[string]*models.Message)}
}

func (s *MemoryMessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return msg.Clone(), nil
}

func (s *MemoryMessageStore) Create(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return ErrAlreadyExists
	}
	s.messages[msg.ID] = msg.Clone()
	return nil
}

func (s *MemoryMessageStore) Update(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; !exists {
		return ErrNotFound
	}
	s.messages[msg.ID] = msg.Clone()
	return nil
}

func (s *MemoryMessageStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[id]; !exists {
		return ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

func (s *MemoryMessageStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.messages[id]
	return ok, nil
}

func (s *MemoryMessageStore) reset() {
	s.mu.Lock()
	s.messages = make(map[string]*models.Message)
	s.mu.Unlock()
}

// MemoryPinboardStore provides an in-memory PinboardStore.
type MemoryPinboardStore struct {
	mu     sync.RWMutex
	boards map[string]*models.Pinboard
	links  []*models.PinboardLink
}

// NewMemoryPinboardStore creates an in-memory pinboard store.
func NewMemoryPinboardStore() *MemoryPinboardStore {
	return &MemoryPinboardStore{boards: make(map[string]*models.Pinboard)}
}

func (s *MemoryPinboardStore) Register(ctx context.Context, board *models.Pinboard) error {
	if board == nil || board.ChannelID == "" {
		return fmt.Errorf("pinboard is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.boards[board.ChannelID]; exists {
		return ErrAlreadyExists
	}
	cp := *board
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.boards[board.ChannelID] = &cp
	return nil
}

func (s *MemoryPinboardStore) List(ctx context.Context, limit int) ([]*models.Pinboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	boards := make([]*models.Pinboard, 0, len(s.boards))
	for _, board := range s.boards {
		cp := *board
		boards = append(boards, &cp)
	}
	sort.Slice(boards, func(i, j int) bool {
		return idLess(boards[i].ChannelID, boards[j].ChannelID)
	})
	if limit > 0 && len(boards) > limit {
		boards = boards[:limit]
	}
	return boards, nil
}

func (s *MemoryPinboardStore) Link(ctx context.Context, link *models.PinboardLink) error {
	if link == nil || link.SourceChannelID == "" || link.PinboardChannelID == "" {
		return fmt.Errorf("link requires both a source and a pinboard channel")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.links {
		if existing.SourceChannelID == link.SourceChannelID && existing.PinboardChannelID == link.PinboardChannelID {
			return ErrAlreadyExists
		}
	}
	cp := *link
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.links = append(s.links, &cp)
	return nil
}

func (s *MemoryPinboardStore) Links(ctx context.Context) ([]*models.PinboardLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	links := make([]*models.PinboardLink, 0, len(s.links))
	for _, link := range s.links {
		cp := *link
		links = append(links, &cp)
	}
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].SourceChannelID != links[j].SourceChannelID {
			return idLess(links[i].SourceChannelID, links[j].SourceChannelID)
		}
		return idLess(links[i].PinboardChannelID, links[j].PinboardChannelID)
	})
	return links, nil
}

func (s *MemoryPinboardStore) PinboardsFor(ctx context.Context, sourceChannelID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, link := range s.links {
		if link.SourceChannelID == sourceChannelID {
			ids = append(ids, link.PinboardChannelID)
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (s *MemoryPinboardStore) LinkedSources(ctx context.Context, pinboardChannelID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, link := range s.links {
		if link.PinboardChannelID == pinboardChannelID {
			ids = append(ids, link.SourceChannelID)
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (s *MemoryPinboardStore) TrackedChannels(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, link := range s.links {
		if _, ok := seen[link.SourceChannelID]; ok {
			continue
		}
		seen[link.SourceChannelID] = struct{}{}
		ids = append(ids, link.SourceChannelID)
	}
	sortIDs(ids)
	return ids, nil
}

func (s *MemoryPinboardStore) reset() {
	s.mu.Lock()
	s.boards = make(map[string]*models.Pinboard)
	s.links = nil
	s.mu.Unlock()
}

// MemorySettingsStore provides an in-memory SettingsStore.
type MemorySettingsStore struct {
	mu   sync.RWMutex
	mode models.MigrationMode
}

// NewMemorySettingsStore creates an in-memory settings store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{}
}

func (s *MemorySettingsStore) MigrationMode(ctx context.Context) (models.MigrationMode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mode == "" {
		return models.DefaultMigrationMode, nil
	}
	return s.mode, nil
}

func (s *MemorySettingsStore) SetMigrationMode(ctx context.Context, mode models.MigrationMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid migration mode %q", mode)
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return nil
}

func (s *MemorySettingsStore) SeedMigrationMode(ctx context.Context, mode models.MigrationMode) (bool, error) {
	if !mode.Valid() {
		return false, fmt.Errorf("invalid migration mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != "" {
		return false, nil
	}
	s.mode = mode
	return true, nil
}

func (s *MemorySettingsStore) reset() {
	s.mu.Lock()
	s.mode = ""
	s.mu.Unlock()
}

// MemoryPrivacyStore provides an in-memory PrivacyStore.
type MemoryPrivacyStore struct {
	mu    sync.RWMutex
	users map[string]time.Time
}

// NewMemoryPrivacyStore creates an in-memory privacy store.
func NewMemoryPrivacyStore() *MemoryPrivacyStore {
	return &MemoryPrivacyStore{users: make(map[string]time.Time)}
}

func (s *MemoryPrivacyStore) IsProtected(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *MemoryPrivacyStore) Protect(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[userID]; !exists {
		s.users[userID] = time.Now()
	}
	return nil
}

func (s *MemoryPrivacyStore) Unprotect(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

func (s *MemoryPrivacyStore) reset() {
	s.mu.Lock()
	s.users = make(map[string]time.Time)
	s.mu.Unlock()
}
