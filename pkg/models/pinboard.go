package models

import (
	"fmt"
	"strings"
	"time"
)

// Pinboard is a channel registered to receive archived copies of pinned messages.
type Pinboard struct {
	ChannelID string    `json:"channel_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PinboardLink connects a source channel to a pinboard. The pair is unique.
type PinboardLink struct {
	SourceChannelID   string    `json:"source_channel_id"`
	PinboardChannelID string    `json:"pinboard_channel_id"`
	CreatedAt         time.Time `json:"created_at"`
}

// ProtectedUser is a user whose messages are never mirrored.
type ProtectedUser struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MigrationMode controls what happens when a channel reaches its pin limit.
type MigrationMode string

const (
	// MigrationManual never migrates on its own.
	MigrationManual MigrationMode = "manual"
	// MigrationConfirmation asks a moderator before prompting for a pinboard.
	MigrationConfirmation MigrationMode = "confirmation"
	// MigrationAutomatic prompts for a pinboard straight away.
	MigrationAutomatic MigrationMode = "automatic"
)

// DefaultMigrationMode is used when no mode has been stored yet.
const DefaultMigrationMode = MigrationManual

// Valid reports whether m is a known mode.
func (m MigrationMode) Valid() bool {
	switch m {
	case MigrationManual, MigrationConfirmation, MigrationAutomatic:
		return true
	default:
		return false
	}
}

func (m MigrationMode) String() string {
	return string(m)
}

// ParseMigrationMode parses a mode name, case-insensitively.
func ParseMigrationMode(s string) (MigrationMode, error) {
	mode := MigrationMode(strings.ToLower(strings.TrimSpace(s)))
	if !mode.Valid() {
		return "", fmt.Errorf("unknown migration mode %q (want manual, confirmation or automatic)", s)
	}
	return mode, nil
}
