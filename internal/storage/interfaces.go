package storage

import (
	"context"
	"errors"
	"sort"

	"github.com/haasonsaas/pinboard/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// MessageStore persists the message mirror.
type MessageStore interface {
	Get(ctx context.Context, id string) (*models.Message, error)
	Create(ctx context.Context, msg *models.Message) error
	Update(ctx context.Context, msg *models.Message) error
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// PinboardStore persists registered pinboards and their links to source channels.
type PinboardStore interface {
	Register(ctx context.Context, board *models.Pinboard) error
	// List returns registered pinboards ordered by channel ID. A limit of zero means no limit.
	List(ctx context.Context, limit int) ([]*models.Pinboard, error)
	Link(ctx context.Context, link *models.PinboardLink) error
	Links(ctx context.Context) ([]*models.PinboardLink, error)
	// PinboardsFor returns the pinboard channel IDs linked to a source channel.
	PinboardsFor(ctx context.Context, sourceChannelID string) ([]string, error)
	// LinkedSources returns the source channel IDs linked to a pinboard.
	LinkedSources(ctx context.Context, pinboardChannelID string) ([]string, error)
	// TrackedChannels returns every source channel with at least one link.
	TrackedChannels(ctx context.Context) ([]string, error)
}

// SettingsStore persists process-wide settings.
type SettingsStore interface {
	// MigrationMode returns the stored mode, or models.DefaultMigrationMode when unset.
	MigrationMode(ctx context.Context) (models.MigrationMode, error)
	SetMigrationMode(ctx context.Context, mode models.MigrationMode) error
	// SeedMigrationMode stores mode only when no mode is stored yet and
	// reports whether it did.
	SeedMigrationMode(ctx context.Context, mode models.MigrationMode) (bool, error)
}

// PrivacyStore records users who opted out of message mirroring.
type PrivacyStore interface {
	IsProtected(ctx context.Context, userID string) (bool, error)
	Protect(ctx context.Context, userID string) error
	Unprotect(ctx context.Context, userID string) error
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Messages  MessageStore
	Pinboards PinboardStore
	Settings  SettingsStore
	Privacy   PrivacyStore
	closer    func() error
	pruner    func(ctx context.Context) error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Prune drops every stored record and recreates an empty schema.
func (s StoreSet) Prune(ctx context.Context) error {
	if s.pruner == nil {
		return errors.New("prune not supported by this backend")
	}
	return s.pruner(ctx)
}

// idLess orders snowflake IDs numerically without parsing them: a shorter
// decimal string is a smaller number. The SQL stores order the same way.
func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })
}
