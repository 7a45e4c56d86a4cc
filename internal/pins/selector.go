package pins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/pinboard/pkg/models"
)

// selectionStride is the page offset applied to a selector icon. Pages render
// up to nine entries, so past the first page an icon does not resolve to the
// line it tags.
const selectionStride = 7

// Page is one rendered page of the pinboard picker.
type Page struct {
	Lines []string
	// Icons holds the selector icon index of each line.
	Icons []int
}

// Text renders the page as an embed description.
func (p Page) Text() string {
	return strings.Join(p.Lines, "\n")
}

// BuildPages renders candidates as picker pages. Each line is tagged with the
// digit for position mod 9. A page closes after the ninth icon, or early when
// the next line would push it past maxPageSize characters; that line then
// starts the following page.
func BuildPages(candidates []*models.Channel, maxPageSize int) []Page {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}

	var pages []Page
	var current Page
	size := 0
	closePage := func() {
		if len(current.Lines) > 0 {
			pages = append(pages, current)
		}
		current = Page{}
		size = 0
	}

	for pos, ch := range candidates {
		icon := pos % digitsOnPage
		line := fmt.Sprintf("%s) %s (`%s`)", DigitEmojis[icon], ch.Mention(), ch.ID)
		lineLen := utf8.RuneCountInString(line)

		if len(current.Lines) > 0 && size+1+lineLen > maxPageSize {
			closePage()
		}
		if len(current.Lines) > 0 {
			size++
		}
		current.Lines = append(current.Lines, line)
		current.Icons = append(current.Icons, icon)
		size += lineLen

		if icon == digitsOnPage-1 {
			closePage()
		}
	}
	closePage()
	return pages
}

// SelectionIndex maps a selector icon on a page to a candidate index.
func SelectionIndex(icon, page int) int {
	return icon + page*selectionStride
}

func digitIndex(emoji string) int {
	for i, d := range DigitEmojis {
		if d == emoji {
			return i
		}
	}
	return -1
}

type sessionState int

const (
	sessionAwaiting sessionState = iota
	sessionSelected
	sessionAbandoned
)

// selectionSession is the picker state machine. Every transition reports
// whether it changed the state.
type selectionSession struct {
	page       int
	pages      int
	candidates int
	selected   int
	state      sessionState
}

func newSelectionSession(pages, candidates int) *selectionSession {
	return &selectionSession{pages: pages, candidates: candidates, selected: -1}
}

// PageBack moves to the previous page unless already on the first.
func (s *selectionSession) PageBack() bool {
	if s.state != sessionAwaiting || s.page == 0 {
		return false
	}
	s.page--
	return true
}

// PageForward moves to the next page unless already on the last.
func (s *selectionSession) PageForward() bool {
	if s.state != sessionAwaiting || s.page+1 >= s.pages {
		return false
	}
	s.page++
	return true
}

// Select resolves the session with the candidate an icon maps to on the
// current page. Indexes outside the candidate list are refused.
func (s *selectionSession) Select(icon int) bool {
	if s.state != sessionAwaiting || icon < 0 {
		return false
	}
	idx := SelectionIndex(icon, s.page)
	if idx >= s.candidates {
		return false
	}
	s.selected = idx
	s.state = sessionSelected
	return true
}

// Timeout abandons an unresolved session.
func (s *selectionSession) Timeout() bool {
	if s.state != sessionAwaiting {
		return false
	}
	s.state = sessionAbandoned
	return true
}

// SelectPinboard asks for a destination among candidates using a paginated
// reaction picker in channelID. With authorID set only that user may answer,
// otherwise any user who can manage messages may. It returns nil when there
// are no candidates or the picker timed out or was cancelled.
func (s *Service) SelectPinboard(ctx context.Context, channelID string, candidates []*models.Channel, authorID string) (*models.Channel, error) {
	if len(candidates) == 0 {
		s.logger.Debug("no pinboard candidates", "channel_id", channelID)
		return nil, nil
	}
	logger := s.sessionLogger("select", channelID)

	pages := BuildPages(candidates, s.cfg.MaxPageSize)
	session := newSelectionSession(len(pages), len(candidates))
	prompt := Prompt{
		Title:       fmt.Sprintf("Select a %spinboard to migrate to", EmojiPin),
		Description: pages[0].Text(),
	}

	msg, err := s.platform.SendPrompt(ctx, channelID, prompt)
	if err != nil {
		s.metrics.RecordPrompt("select", "error")
		return nil, fmt.Errorf("post pinboard picker: %w", err)
	}
	events, unsubscribe := s.hub.subscribe(msg.ID)
	defer unsubscribe()

	affordances := []string{EmojiPrev}
	for _, icon := range pages[0].Icons {
		affordances = append(affordances, DigitEmojis[icon])
	}
	affordances = append(affordances, EmojiNext)
	for _, emoji := range affordances {
		if err := s.platform.AddReaction(ctx, channelID, msg.ID, emoji); err != nil {
			logger.Warn("failed to add reaction", "emoji", emoji, "error", err)
		}
	}

	qualifies := func(ctx context.Context, ev ReactionEvent) bool {
		if ev.Emoji != EmojiPrev && ev.Emoji != EmojiNext && digitIndex(ev.Emoji) < 0 {
			return false
		}
		if ev.UserID == "" || ev.UserID == s.platform.SelfID() {
			return false
		}
		if authorID != "" {
			return ev.UserID == authorID
		}
		return s.canModerate(ctx, logger, channelID, ev.UserID)
	}

	for {
		ev, err := waitForReaction(ctx, events, s.cfg.PromptTimeout, qualifies)
		if errors.Is(err, ErrPromptAbandoned) {
			session.Timeout()
			logger.Info("pinboard picker abandoned", "page", session.page)
			if err := s.platform.ClearReactions(context.WithoutCancel(ctx), channelID, msg.ID); err != nil {
				logger.Warn("failed to clear reactions", "error", err)
			}
			s.metrics.RecordPrompt("select", "abandoned")
			return nil, nil
		}

		switch ev.Emoji {
		case EmojiPrev, EmojiNext:
			var moved bool
			if ev.Emoji == EmojiPrev {
				moved = session.PageBack()
			} else {
				moved = session.PageForward()
			}
			if !moved {
				continue
			}
			if err := s.platform.RemoveReaction(ctx, channelID, msg.ID, ev.Emoji, ev.UserID); err != nil {
				logger.Warn("failed to remove navigation reaction", "error", err)
			}
			prompt.Description = pages[session.page].Text()
			if err := s.platform.EditPrompt(ctx, channelID, msg.ID, prompt); err != nil {
				logger.Warn("failed to show page", "page", session.page, "error", err)
			}
		default:
			icon := digitIndex(ev.Emoji)
			if !session.Select(icon) {
				logger.Warn("ignoring out of range selection",
					"icon", icon,
					"page", session.page,
					"index", SelectionIndex(icon, session.page),
					"candidates", len(candidates))
				continue
			}
			chosen := candidates[session.selected]
			logger.Info("pinboard selected", "pinboard_id", chosen.ID, "user_id", ev.UserID)
			if err := s.platform.ClearReactions(ctx, channelID, msg.ID); err != nil {
				logger.Warn("failed to clear reactions", "error", err)
			}
			s.metrics.RecordPrompt("select", "selected")
			return chosen, nil
		}
	}
}
