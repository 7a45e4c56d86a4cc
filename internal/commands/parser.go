package commands

import (
	"strings"
	"unicode"
)

// DefaultPrefix is the default command prefix.
const DefaultPrefix = "!"

// Parser recognises prefix commands such as "!pinboards add <#1>".
// A command name starts with an ASCII letter directly after the prefix.
type Parser struct {
	prefix string
}

// NewParser creates a parser for prefix. A blank prefix falls back to
// DefaultPrefix.
func NewParser(prefix string) *Parser {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Parser{prefix: prefix}
}

// Prefix returns the prefix the parser matches.
func (p *Parser) Prefix() string {
	return p.prefix
}

// IsCommand reports whether text starts with the prefix followed by a letter.
func (p *Parser) IsCommand(text string) bool {
	rest, ok := strings.CutPrefix(strings.TrimSpace(text), p.prefix)
	return ok && rest != "" && isASCIILetter(rest[0])
}

// ParseCommand splits a command message into its lowercased name and the
// remaining argument text. It returns nil for anything that is not a command.
func (p *Parser) ParseCommand(text string) *ParsedCommand {
	text = strings.TrimSpace(text)
	if !p.IsCommand(text) {
		return nil
	}
	body := text[len(p.prefix):]

	end := strings.IndexFunc(body, func(r rune) bool {
		return !(r < unicode.MaxASCII && (isASCIILetter(byte(r)) || (r >= '0' && r <= '9') || r == '_' || r == '-'))
	})
	if end == -1 {
		end = len(body)
	}
	args := body[end:]
	if args != "" && !unicode.IsSpace(rune(args[0])) {
		// Name runs straight into punctuation, e.g. "!migrate?".
		return nil
	}

	return &ParsedCommand{
		Name:   strings.ToLower(body[:end]),
		Args:   strings.TrimSpace(args),
		Prefix: p.prefix,
	}
}

// SplitCommandArgs splits argument text into its first word, lowercased,
// and the trimmed remainder. Any whitespace separates the two.
func SplitCommandArgs(text string) (name, args string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	end := strings.IndexFunc(text, unicode.IsSpace)
	if end == -1 {
		return strings.ToLower(text), ""
	}
	return strings.ToLower(text[:end]), strings.TrimSpace(text[end:])
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
