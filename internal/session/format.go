package session

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/starford/quire/internal/plaintext"
)

// Formatting commands understood by TagFormatter.
const (
	CmdBold        = "bold"
	CmdItalic      = "italic"
	CmdUnderline   = "underline"
	CmdStrike      = "strikeThrough"
	CmdFormatBlock = "formatBlock"
	CmdRemove      = "removeFormat"
)

// ToolbarCommands are the toggles reported by FormatStates. Block formats are
// keyed by their tag name.
var ToolbarCommands = []string{CmdBold, CmdItalic, CmdUnderline, CmdStrike, "blockquote"}

// ErrUnknownCommand is returned for commands a Formatter does not support.
var ErrUnknownCommand = errors.New("unknown format command")

// Formatter is the rich-text edit surface. ApplyFormat returns the markup
// after running command; FormatActive reports whether command is in effect.
type Formatter interface {
	ApplyFormat(markup, command, value string) (string, error)
	FormatActive(markup, command string) bool
}

var inlineTags = map[string]string{
	CmdBold:      "b",
	CmdItalic:    "i",
	CmdUnderline: "u",
	CmdStrike:    "s",
}

var blockTags = map[string]bool{
	"blockquote": true,
	"p":          true,
	"pre":        true,
	"h1":         true,
	"h2":         true,
	"h3":         true,
}

// TagFormatter toggles formats over the whole note body. It is used when no
// selection-aware surface is attached, e.g. over the HTTP API.
type TagFormatter struct{}

// ApplyFormat toggles the tag for command around markup.
func (TagFormatter) ApplyFormat(markup, command, value string) (string, error) {
	if command == CmdRemove {
		return html.EscapeString(plaintext.Text(markup)), nil
	}
	tag, err := tagFor(command, value)
	if err != nil {
		return markup, err
	}
	if inner, ok := unwrap(markup, tag); ok {
		return inner, nil
	}
	return "<" + tag + ">" + markup + "</" + tag + ">", nil
}

// FormatActive reports whether markup is wrapped in the tag for command.
// Block tags may be passed directly as the command.
func (TagFormatter) FormatActive(markup, command string) bool {
	tag, ok := inlineTags[command]
	if !ok {
		if !blockTags[command] {
			return false
		}
		tag = command
	}
	_, wrapped := unwrap(markup, tag)
	return wrapped
}

func tagFor(command, value string) (string, error) {
	if tag, ok := inlineTags[command]; ok {
		return tag, nil
	}
	if command == CmdFormatBlock {
		v := strings.ToLower(strings.Trim(value, "<>"))
		if blockTags[v] {
			return v, nil
		}
		return "", fmt.Errorf("%w: %s %q", ErrUnknownCommand, command, value)
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCommand, command)
}

func unwrap(markup, tag string) (string, bool) {
	open, closing := "<"+tag+">", "</"+tag+">"
	if len(markup) < len(open)+len(closing) {
		return "", false
	}
	if !strings.HasPrefix(markup, open) || !strings.HasSuffix(markup, closing) {
		return "", false
	}
	inner := markup[len(open) : len(markup)-len(closing)]
	// <b>x</b><b>y</b> is two runs, not one wrapped body.
	if strings.Contains(inner, closing) {
		return "", false
	}
	return inner, true
}

// shortcuts maps ctrl/cmd key combinations to commands.
var shortcuts = map[string]string{
	"b": CmdBold,
	"i": CmdItalic,
	"u": CmdUnderline,
}

// PlainPaste renders pasted text as markup: every line is escaped and line
// breaks become <br>.
func PlainPaste(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = html.EscapeString(l)
	}
	return strings.Join(lines, "<br>")
}
