// Package commands provides prefix command detection and routing.
package commands

import (
	"context"
)

// Command is a registered prefix command such as "pinboards" or "migrate".
type Command struct {
	Name    string
	Aliases []string
	// Description and Usage are shown in help replies.
	Description string
	Usage       string

	// AcceptsArgs must be set for commands that take arguments; otherwise
	// trailing text is rejected.
	AcceptsArgs bool

	// RequiresManageMessages limits the command to users who can manage
	// messages in the invoking channel.
	RequiresManageMessages bool

	// Subcommands are matched against the first word of the arguments.
	Subcommands []*Command

	Handler CommandHandler
}

// CommandHandler runs one invocation.
type CommandHandler func(ctx context.Context, inv *Invocation) (*Result, error)

// Invocation carries everything a handler needs about the triggering message.
type Invocation struct {
	// Command is the resolved command or subcommand, set by Registry.Execute.
	Command *Command
	// Name is the name or alias as typed.
	Name string
	// Args is the text after the command, or after the subcommand once resolved.
	Args    string
	RawText string

	GuildID   string
	ChannelID string
	UserID    string

	// CanManageMessages is the invoking user's permission in ChannelID.
	CanManageMessages bool
}

// Result is what a handler wants posted back to the channel.
type Result struct {
	// Title renders the reply as an embed with Text as its body.
	Title    string
	Text     string
	Suppress bool
	// Error is a user-facing failure message.
	Error string
}

// ParsedCommand is a command recognised by Parser.
type ParsedCommand struct {
	Name   string
	Args   string
	Prefix string
}
