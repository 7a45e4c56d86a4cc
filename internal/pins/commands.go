package pins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/pinboard/internal/commands"
	"github.com/haasonsaas/pinboard/internal/storage"
	"github.com/haasonsaas/pinboard/pkg/models"
)

// pinboardListLimit caps the pinboards shown by the list command.
const pinboardListLimit = 6

func (s *Service) registerCommands() error {
	cmds := []*commands.Command{
		{
			Name:                   "pinboards",
			Aliases:                []string{"pinboard"},
			Description:            "Display all registered pinboards in the server",
			Usage:                  "pinboards",
			RequiresManageMessages: true,
			Handler:                s.cmdListPinboards,
			Subcommands: []*commands.Command{
				{
					Name:                   "add",
					Description:            "Register a channel as a pinboard",
					Usage:                  "pinboards add #channel",
					AcceptsArgs:            true,
					RequiresManageMessages: true,
					Handler:                s.cmdAddPinboard,
				},
				{
					Name:                   "link",
					Description:            "Link a channel to an existing pinboard",
					Usage:                  "pinboards link #channel #pinboard",
					AcceptsArgs:            true,
					RequiresManageMessages: true,
					Handler:                s.cmdLinkPinboard,
				},
				{
					Name:                   "mode",
					Description:            "Show or change what happens when a channel runs out of pins",
					Usage:                  "pinboards mode [manual|confirmation|automatic]",
					AcceptsArgs:            true,
					RequiresManageMessages: true,
					Handler:                s.cmdMode,
				},
			},
		},
		{
			Name:                   "migrate",
			Description:            "Migrate all pinned messages in this channel to a pinboard",
			Usage:                  "migrate",
			RequiresManageMessages: true,
			Handler:                s.cmdMigrate,
		},
	}
	for _, cmd := range cmds {
		if err := s.registry.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

// dispatchCommand runs a prefix command found in msg and posts its reply.
func (s *Service) dispatchCommand(ctx context.Context, msg *models.Message) {
	parsed := s.parser.ParseCommand(msg.Content)
	if parsed == nil {
		return
	}
	if _, ok := s.registry.Get(parsed.Name); !ok {
		return
	}
	logger := s.logger.With("command", parsed.Name, "channel_id", msg.ChannelID, "user_id", msg.AuthorID)

	canManage, err := s.platform.CanManageMessages(ctx, msg.ChannelID, msg.AuthorID)
	if err != nil {
		logger.Warn("permission check failed", "error", err)
	}

	res, err := s.registry.Execute(ctx, &commands.Invocation{
		Name:              parsed.Name,
		Args:              parsed.Args,
		RawText:           msg.Content,
		GuildID:           msg.GuildID,
		ChannelID:         msg.ChannelID,
		UserID:            msg.AuthorID,
		CanManageMessages: canManage,
	})
	if err != nil {
		logger.Error("command failed", "error", err)
		res = &commands.Result{Error: "Something went wrong running that command."}
	}
	s.reply(ctx, logger, msg.ChannelID, res)
}

func (s *Service) reply(ctx context.Context, logger *slog.Logger, channelID string, res *commands.Result) {
	if res == nil || res.Suppress {
		return
	}
	var err error
	switch {
	case res.Error != "":
		_, err = s.platform.SendMessage(ctx, channelID, fmt.Sprintf("%s %s", EmojiReject, res.Error))
	case res.Title != "":
		_, err = s.platform.SendPrompt(ctx, channelID, Prompt{Title: res.Title, Description: res.Text})
	case res.Text != "":
		_, err = s.platform.SendMessage(ctx, channelID, res.Text)
	}
	if err != nil {
		logger.Warn("failed to send command reply", "error", err)
	}
}

func (s *Service) cmdListPinboards(ctx context.Context, inv *commands.Invocation) (*commands.Result, error) {
	boards, err := s.pinboards.List(ctx, pinboardListLimit)
	if err != nil {
		return nil, fmt.Errorf("list pinboards: %w", err)
	}
	lines := make([]string, 0, len(boards))
	for _, board := range boards {
		lines = append(lines, "<#"+board.ChannelID+">")
	}
	description := strings.Join(lines, "\n")
	if description == "" {
		description = fmt.Sprintf("%s You do not have any pinboards registered in this server!\n\n"+
			"To create one, use `%spinboards add #channel`, where `#channel` is the text channel to transform into a pinboard.",
			EmojiReject, s.cfg.CommandPrefix)
	}
	return &commands.Result{Title: EmojiPin + " Pinboards", Text: description}, nil
}

func (s *Service) cmdAddPinboard(ctx context.Context, inv *commands.Invocation) (*commands.Result, error) {
	refs := strings.Fields(inv.Args)
	if len(refs) != 1 {
		return &commands.Result{Error: "Usage: " + s.cfg.CommandPrefix + inv.Command.Usage}, nil
	}
	channel, res := s.resolveCommandChannel(ctx, refs[0])
	if res != nil {
		return res, nil
	}

	err := s.pinboards.Register(ctx, &models.Pinboard{ChannelID: channel.ID})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return &commands.Result{Error: channel.Mention() + " is already a pinboard."}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("register pinboard: %w", err)
	}
	return &commands.Result{Text: fmt.Sprintf("Registered %s as a pinboard!", channel.Mention())}, nil
}

func (s *Service) cmdLinkPinboard(ctx context.Context, inv *commands.Invocation) (*commands.Result, error) {
	refs := strings.Fields(inv.Args)
	if len(refs) != 2 {
		return &commands.Result{Error: "Usage: " + s.cfg.CommandPrefix + inv.Command.Usage}, nil
	}
	source, res := s.resolveCommandChannel(ctx, refs[0])
	if res != nil {
		return res, nil
	}
	board, res := s.resolveCommandChannel(ctx, refs[1])
	if res != nil {
		return res, nil
	}

	registered, err := s.isPinboard(ctx, board.ID)
	if err != nil {
		return nil, err
	}
	if !registered {
		return &commands.Result{Error: fmt.Sprintf("%s is not a pinboard. Register it with `%spinboards add` first.",
			board.Mention(), s.cfg.CommandPrefix)}, nil
	}

	err = s.pinboards.Link(ctx, &models.PinboardLink{SourceChannelID: source.ID, PinboardChannelID: board.ID})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return &commands.Result{Error: fmt.Sprintf("%s is already linked to %s.", source.Mention(), board.Mention())}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("link pinboard: %w", err)
	}
	return &commands.Result{Text: fmt.Sprintf("Successfully linked %s to the %s%s", source.Mention(), EmojiPin, board.Mention())}, nil
}

func (s *Service) cmdMode(ctx context.Context, inv *commands.Invocation) (*commands.Result, error) {
	arg := strings.TrimSpace(inv.Args)
	if arg == "" {
		mode, err := s.settings.MigrationMode(ctx)
		if err != nil {
			return nil, fmt.Errorf("read migration mode: %w", err)
		}
		return &commands.Result{Text: fmt.Sprintf("Automatic migration mode is `%s`.", mode)}, nil
	}
	mode, err := models.ParseMigrationMode(arg)
	if err != nil {
		return &commands.Result{Error: err.Error()}, nil
	}
	if err := s.settings.SetMigrationMode(ctx, mode); err != nil {
		return nil, fmt.Errorf("set migration mode: %w", err)
	}
	s.logger.Info("migration mode changed", "mode", mode.String(), "user_id", inv.UserID)
	return &commands.Result{Text: fmt.Sprintf("Automatic migration mode set to `%s`.", mode)}, nil
}

func (s *Service) cmdMigrate(ctx context.Context, inv *commands.Invocation) (*commands.Result, error) {
	source, err := s.platform.Channel(ctx, inv.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("resolve channel: %w", err)
	}
	if !source.SupportsPins {
		return &commands.Result{Error: "This channel does not support pins."}, nil
	}

	candidates, err := s.linkedPinboards(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	var destination *models.Channel
	switch len(candidates) {
	case 0:
		return &commands.Result{Error: "No pinboards are linked to this channel."}, nil
	case 1:
		destination = candidates[0]
	default:
		destination, err = s.SelectPinboard(ctx, source.ID, candidates, inv.UserID)
		if err != nil {
			return nil, err
		}
		if destination == nil {
			return &commands.Result{Suppress: true}, nil
		}
	}

	pinned, err := s.platform.FetchPinnedMessages(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch pinned messages: %w", err)
	}
	report := s.Migrate(ctx, source.ID, destination, pinned)
	return &commands.Result{Text: fmt.Sprintf("Migrated %d of %d pinned messages to %s%s",
		report.Migrated, report.Attempted, EmojiPin, destination.Mention())}, nil
}

// resolveCommandChannel turns a channel mention or ID into a pin capable
// channel of the home guild. A non-nil result is a user-facing refusal.
func (s *Service) resolveCommandChannel(ctx context.Context, ref string) (*models.Channel, *commands.Result) {
	id := parseChannelRef(ref)
	if id == "" {
		return nil, &commands.Result{Error: fmt.Sprintf("%q is not a channel.", ref)}
	}
	channel, err := s.platform.Channel(ctx, id)
	if err != nil {
		return nil, &commands.Result{Error: fmt.Sprintf("Could not find channel %s.", ref)}
	}
	if channel.GuildID != s.cfg.HomeGuildID {
		return nil, &commands.Result{Error: fmt.Sprintf("%s is not in this server.", channel.Mention())}
	}
	if !channel.SupportsPins {
		return nil, &commands.Result{Error: fmt.Sprintf("%s does not support pins.", channel.Mention())}
	}
	return channel, nil
}

func (s *Service) isPinboard(ctx context.Context, channelID string) (bool, error) {
	boards, err := s.pinboards.List(ctx, 0)
	if err != nil {
		return false, fmt.Errorf("list pinboards: %w", err)
	}
	for _, board := range boards {
		if board.ChannelID == channelID {
			return true, nil
		}
	}
	return false, nil
}

// parseChannelRef accepts <#id> mentions and bare numeric IDs.
func parseChannelRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "<#") && strings.HasSuffix(ref, ">") {
		ref = ref[2 : len(ref)-1]
	}
	if ref == "" {
		return ""
	}
	for _, r := range ref {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return ref
}
