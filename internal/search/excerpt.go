package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxExcerptLength is the excerpt length in runes when unset.
	DefaultMaxExcerptLength = 1024

	excerptSeparator = " ... "
	markOpen         = "<mark>"
	markClose        = "</mark>"
)

// buildExcerpt joins highlighted fragments, strips control characters and
// truncates the result to at most maxLength runes without leaving a broken
// or unbalanced highlight tag.
func buildExcerpt(fragments []string, maxLength int) string {
	if len(fragments) == 0 {
		return ""
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxExcerptLength
	}

	text := strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.Join(fragments, excerptSeparator))
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}

	text = truncateExcerpt(runes, maxLength)
	if !marksBalanced(text) {
		// Leave room for the closing tag.
		text = truncateExcerpt(runes, maxLength-utf8.RuneCountInString(markClose))
		if !marksBalanced(text) {
			if strings.HasSuffix(text, markOpen) {
				text = strings.TrimSuffix(text, markOpen)
			} else {
				text += markClose
			}
		}
	}
	return text
}

// truncateExcerpt cuts runes to limit and drops a trailing partial tag.
func truncateExcerpt(runes []rune, limit int) string {
	if limit <= 0 {
		return ""
	}
	text := string(runes[:limit])
	if open := strings.LastIndexByte(text, '<'); open > strings.LastIndexByte(text, '>') {
		text = text[:open]
	}
	return text
}

func marksBalanced(text string) bool {
	return strings.Count(text, markOpen) == strings.Count(text, markClose)
}
