// Package sanitize cleans story text before it is shown on a terminal or
// handed to an assistant. Stories are often machine-generated, so node text
// and choice labels may carry terminal escape sequences, stray control
// characters or markup that reads as instructions once inside a prompt.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxPromptLength is the maximum length, in bytes, of text returned by Prompt.
const MaxPromptLength = 8000

// MaxLabelLength is the maximum length, in bytes, of text returned by Label.
const MaxLabelLength = 200

var (
	// reANSI matches CSI sequences (colours, cursor movement) and OSC
	// sequences (window titles, hyperlinks).
	reANSI = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)

	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reMarkdownHeading matches markdown headings at the start of a line (# , ## , etc.).
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)

	// reHorizontalRule matches markdown horizontal rules (---, ***, ___) at the start of a line.
	reHorizontalRule = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)

	reTripleBacktick    = regexp.MustCompile("```+")
	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)
	reSpaces            = regexp.MustCompile(`\s+`)
)

// Terminal makes node text safe to print. The pipeline:
//  1. Strip ANSI escape sequences
//  2. Strip control characters except \n and \t (so \r\n becomes \n)
//  3. Collapse excessive newlines (3+ -> 2)
//  4. Trim leading/trailing whitespace
func Terminal(input string) string {
	if input == "" {
		return ""
	}
	s := reANSI.ReplaceAllString(input, "")
	s = stripControlChars(s)
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Prompt prepares node text for an assistant. On top of Terminal it strips
// XML/HTML tags, turns markdown headings into list markers, drops horizontal
// rules, collapses code fences and truncates to MaxPromptLength.
func Prompt(input string) string {
	s := Terminal(input)
	if s == "" {
		return ""
	}
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "- ")
	s = reHorizontalRule.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	return truncate(s, MaxPromptLength)
}

// Label flattens a choice label onto one line.
func Label(input string) string {
	s := Terminal(input)
	s = reSpaces.ReplaceAllString(s, " ")
	return truncate(s, MaxLabelLength)
}

// truncate cuts s to at most max bytes on a rune boundary and marks the cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// stripControlChars removes C0 control characters except newline and tab,
// DEL, and the C1 range.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 && r != '\n' && r != '\t') || (r >= 0x7f && r <= 0x9f) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
