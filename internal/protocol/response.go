package protocol

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedResponse reports a decrypted payload that does not carry the
// expected 序号/内容 envelope.
var ErrMalformedResponse = errors.New("protocol: malformed server response")

var (
	seqNoPattern   = regexp.MustCompile(`序号\s*=\s*(\d+)`)
	contentPattern = regexp.MustCompile(`内容\s*=\s*`)
)

// ParseResponse extracts the sequence number and content value from a
// decrypted payload of the form
//
//	do local ret={序号=N,内容=<value>} return ret end
//
// where <value> is a double-quoted string or a brace-delimited table literal.
func ParseResponse(raw string) (int, string, error) {
	seqLoc := seqNoPattern.FindStringSubmatchIndex(raw)
	if seqLoc == nil {
		return 0, "", ErrMalformedResponse
	}
	seqNo, err := strconv.Atoi(raw[seqLoc[2]:seqLoc[3]])
	if err != nil {
		return 0, "", ErrMalformedResponse
	}

	// 内容 is located after 序号 so a 序号 appearing inside the content
	// cannot shadow the envelope key.
	rest := raw[seqLoc[1]:]
	cLoc := contentPattern.FindStringIndex(rest)
	if cLoc == nil {
		return 0, "", ErrMalformedResponse
	}
	value := rest[cLoc[1]:]
	if value == "" {
		return 0, "", ErrMalformedResponse
	}

	switch value[0] {
	case '"':
		content, ok := scanQuotedString(value)
		if !ok {
			return 0, "", ErrMalformedResponse
		}
		return seqNo, content, nil
	case '{':
		content, ok := scanBalancedTable(value)
		if !ok {
			return 0, "", ErrMalformedResponse
		}
		return seqNo, content, nil
	default:
		return 0, "", ErrMalformedResponse
	}
}

// scanQuotedString returns the text between the opening quote at s[0] and the
// next unescaped quote.
func scanQuotedString(s string) (string, bool) {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return s[1:i], true
		}
	}
	return "", false
}

// scanBalancedTable returns the table literal starting at s[0], including the
// braces. The server never nests braces inside string payloads it sends
// here, so a plain depth counter suffices.
func scanBalancedTable(s string) (string, bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// IsTableContent reports whether a frame's content is a table literal rather
// than a plain string payload.
func IsTableContent(content string) bool {
	return strings.HasPrefix(content, "{")
}
