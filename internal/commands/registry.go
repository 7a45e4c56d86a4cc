package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry routes invocations to registered commands. Names and aliases
// share one lowercase namespace.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Command // canonical name or alias -> command
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]*Command),
		logger: logger.With("component", "commands"),
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a command. A name that collides with an existing name or
// alias is an error; a colliding alias is skipped with a warning.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return errors.New("command is nil")
	}
	name := normalize(cmd.Name)
	if name == "" {
		return errors.New("command name is required")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", name)
	}
	for _, sub := range cmd.Subcommands {
		if sub == nil || normalize(sub.Name) == "" || sub.Handler == nil {
			return fmt.Errorf("command %q has an invalid subcommand", name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, taken := r.byName[name]; taken {
		if normalize(existing.Name) == name {
			return fmt.Errorf("command %q already registered", name)
		}
		return fmt.Errorf("command name %q conflicts with alias for %q", name, existing.Name)
	}
	r.byName[name] = cmd

	for _, alias := range cmd.Aliases {
		alias = normalize(alias)
		if alias == "" || alias == name {
			continue
		}
		if owner, taken := r.byName[alias]; taken {
			r.logger.Warn("skipping alias already in use", "alias", alias, "command", name, "owner", owner.Name)
			continue
		}
		r.byName[alias] = cmd
	}

	r.logger.Debug("registered command",
		"name", name,
		"aliases", cmd.Aliases,
		"subcommands", len(cmd.Subcommands))
	return nil
}

// Get looks a command up by name or alias.
func (r *Registry) Get(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[normalize(name)]
	return cmd, ok
}

// Names returns the canonical command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for key, cmd := range r.byName {
		if normalize(cmd.Name) == key {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names
}

// Execute runs the command named by inv. When the first word of the
// arguments names a subcommand, the subcommand runs with the rest.
//
// Permission and argument checks produce a user-facing Result rather than
// an error; errors are reserved for unknown commands and handler failures.
func (r *Registry) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	if inv == nil {
		return nil, errors.New("invocation is nil")
	}
	cmd, ok := r.Get(inv.Name)
	if !ok {
		return nil, fmt.Errorf("command %q not found", inv.Name)
	}
	cmd, inv.Args = resolveSubcommand(cmd, inv.Args)

	if cmd.RequiresManageMessages && !inv.CanManageMessages {
		return &Result{Error: "You need the Manage Messages permission in this channel to use this command"}, nil
	}
	if !cmd.AcceptsArgs && strings.TrimSpace(inv.Args) != "" {
		return &Result{Error: fmt.Sprintf("Command %s does not accept arguments", cmd.Name)}, nil
	}

	inv.Command = cmd
	return cmd.Handler(ctx, inv)
}

func resolveSubcommand(cmd *Command, args string) (*Command, string) {
	word, rest := SplitCommandArgs(args)
	if word == "" {
		return cmd, args
	}
	for _, sub := range cmd.Subcommands {
		if strings.EqualFold(sub.Name, word) {
			return sub, rest
		}
	}
	return cmd, args
}
