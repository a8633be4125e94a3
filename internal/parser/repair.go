package parser

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrNoJSON indicates a reply with no JSON value in it
	ErrNoJSON = errors.New("no JSON value found")

	// ErrUnrepairable indicates a reply truncated before any complete element
	ErrUnrepairable = errors.New("no complete element to keep")
)

var trailingComma = regexp.MustCompile(`,\s*([\]}])`)

// Repair returns a structurally balanced version of a possibly truncated JSON reply.
// Leading prose and code fences are skipped, text after the first complete value is dropped,
// a truncated trailing element is cut off, and open brackets are closed.
func Repair(text string) (string, error) {
	text = stripFences(text)
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}
	text = text[start:]

	var (
		stack    []byte
		inString bool
		escaped  bool
		safeCut  = -1
		safeOpen []byte
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				continue
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return cleanCommas(text[:i+1]), nil
			}
			// A nested value just closed: everything up to here is a complete element.
			safeCut = i + 1
			safeOpen = append(safeOpen[:0], stack...)
		}
	}

	if safeCut < 0 {
		return "", ErrUnrepairable
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(text[:safeCut], " \t\r\n,"))
	for i := len(safeOpen) - 1; i >= 0; i-- {
		if safeOpen[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return cleanCommas(b.String()), nil
}

func cleanCommas(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}
