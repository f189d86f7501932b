package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseLuaTable converts a Lua table literal into a map. It understands the
// subset the game server emits: keys of the forms ["k"]=, [n]= and bare
// identifiers; values that are quoted strings, integers, floats, booleans or
// nested tables. Integer keys are stringified so callers get one map shape.
// It is deliberately not a Lua parser; anything outside this subset fails.
func ParseLuaTable(s string) (map[string]interface{}, error) {
	p := &luaParser{src: []rune(strings.TrimSpace(s))}
	table, err := p.parseTable()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("trailing data at offset %d", p.pos)
	}
	return table, nil
}

type luaParser struct {
	src []rune
	pos int
}

func (p *luaParser) parseTable() (map[string]interface{}, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	table := make(map[string]interface{})
	index := 0 // implicit 1-based position for keyless entries

	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return table, nil
		}

		key, explicit, err := p.parseKey()
		if err != nil {
			return nil, err
		}

		var value interface{}
		if explicit {
			p.skipSpace()
			if err := p.expect('='); err != nil {
				return nil, err
			}
			value, err = p.parseValue()
		} else {
			// Keyless array-style entry; the "key" scan already consumed
			// nothing in this case.
			index++
			key = strconv.Itoa(index)
			value, err = p.parseValue()
		}
		if err != nil {
			return nil, err
		}
		table[key] = value

		p.skipSpace()
		switch p.peek() {
		case ',', ';':
			p.pos++
		case '}':
			// handled at loop top
		default:
			return nil, fmt.Errorf("expected ',' or '}' at offset %d", p.pos)
		}
	}
}

// parseKey returns the key and whether an explicit key was present. With no
// explicit key the caller treats the upcoming token as an array value.
func (p *luaParser) parseKey() (string, bool, error) {
	p.skipSpace()
	switch {
	case p.peek() == '[':
		p.pos++
		p.skipSpace()
		if p.peek() == '"' {
			key, err := p.parseString()
			if err != nil {
				return "", false, err
			}
			p.skipSpace()
			if err := p.expect(']'); err != nil {
				return "", false, err
			}
			return key, true, nil
		}
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] != ']' {
			p.pos++
		}
		if p.pos == len(p.src) {
			return "", false, fmt.Errorf("unterminated bracket key at offset %d", start)
		}
		key := strings.TrimSpace(string(p.src[start:p.pos]))
		p.pos++ // ']'
		return key, true, nil

	case isIdentStart(p.peek()):
		start := p.pos
		for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
			p.pos++
		}
		ident := string(p.src[start:p.pos])
		p.skipSpace()
		if p.peek() == '=' {
			return ident, true, nil
		}
		// Not a key after all (e.g. a bare true in array position); rewind.
		p.pos = start
		return "", false, nil

	default:
		return "", false, nil
	}
}

func (p *luaParser) parseValue() (interface{}, error) {
	p.skipSpace()
	switch {
	case p.peek() == '"':
		return p.parseString()
	case p.peek() == '{':
		return p.parseTable()
	case p.peek() == '-' || unicode.IsDigit(p.peek()):
		return p.parseNumber()
	case isIdentStart(p.peek()):
		start := p.pos
		for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
			p.pos++
		}
		switch word := string(p.src[start:p.pos]); word {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, nil
		default:
			return nil, fmt.Errorf("unexpected identifier %q at offset %d", word, start)
		}
	default:
		return nil, fmt.Errorf("unexpected value at offset %d", p.pos)
	}
}

func (p *luaParser) parseString() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case '\\':
			if p.pos < len(p.src) {
				sb.WriteRune(p.src[p.pos])
				p.pos++
			}
		case '"':
			return sb.String(), nil
		default:
			sb.WriteRune(c)
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *luaParser) parseNumber() (interface{}, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	isFloat := false
	for p.pos < len(p.src) && (unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		if p.src[p.pos] == '.' {
			isFloat = true
		}
		p.pos++
	}
	text := string(p.src[start:p.pos])
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", text)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad number %q", text)
	}
	return n, nil
}

func (p *luaParser) expect(c rune) error {
	p.skipSpace()
	if p.peek() != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *luaParser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *luaParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func isIdentStart(c rune) bool {
	return c == '_' || unicode.IsLetter(c)
}

func isIdentPart(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}
