package ircmsg

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxTags is the largest number of tags accepted on one line.
	MaxTags = 50
	// MaxParams is the largest number of params a parsed message carries.
	// Once MaxParams-1 params have been read, the remainder of the line
	// becomes the final param verbatim.
	MaxParams = 15
)

var (
	// ErrEmptyTags is returned for a line that is "@" with nothing after it.
	ErrEmptyTags = errors.New("empty tag segment")
	// ErrTooManyTags is returned when a line carries more than MaxTags tags.
	ErrTooManyTags = fmt.Errorf("more than %d tags", MaxTags)
	// ErrMissingCommand is returned when nothing follows the tags and source.
	ErrMissingCommand = errors.New("missing command")
)

// ParseError reports why a line could not be parsed.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse irc line %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Tag is one message tag. HasValue distinguishes "key" from "key=".
type Tag struct {
	Key      string
	Value    string
	HasValue bool
}

// Message is one parsed IRC line. An empty Source means the line had none.
type Message struct {
	Tags    []Tag
	Source  string
	Command string
	Params  []string
}

// Tag returns the value of the first tag named key.
func (m *Message) Tag(key string) (string, bool) {
	for _, t := range m.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Parse parses line, which may still carry its CR LF terminator.
func Parse(line string) (*Message, error) {
	s := strings.TrimRight(line, "\r\n")
	m := &Message{}

	if strings.HasPrefix(s, "@") {
		tagpart, rest, ok := word(s[1:])
		if !ok {
			return nil, &ParseError{Line: line, Err: ErrEmptyTags}
		}
		tags, err := parseTags(tagpart)
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		m.Tags = tags
		s = rest
	}

	if strings.HasPrefix(s, ":") {
		// A bare ":" is an empty source, which reads the same as none.
		m.Source, s, _ = word(s[1:])
	}

	command, rest, ok := word(s)
	if !ok || command == "" {
		return nil, &ParseError{Line: line, Err: ErrMissingCommand}
	}
	m.Command = command
	s = rest

	for s != "" {
		if s[0] == ':' {
			m.Params = append(m.Params, s[1:])
			break
		}
		if len(m.Params)+1 == MaxParams {
			m.Params = append(m.Params, s)
			break
		}
		var p string
		p, s, _ = word(s)
		m.Params = append(m.Params, p)
	}

	return m, nil
}

// word splits off the next space-delimited word and skips the run of
// spaces that follows it.
func word(s string) (w, rest string, ok bool) {
	if s == "" {
		return "", "", false
	}
	w, rest, found := strings.Cut(s, " ")
	if !found {
		return w, "", true
	}
	return w, strings.TrimLeft(rest, " "), true
}

func parseTags(tagpart string) ([]Tag, error) {
	var tags []Tag
	for _, kv := range strings.Split(tagpart, ";") {
		if kv == "" {
			continue
		}
		if len(tags) == MaxTags {
			return nil, ErrTooManyTags
		}
		key, val, hasVal := strings.Cut(kv, "=")
		if hasVal {
			val = ParseTagValue(val)
		}
		tags = append(tags, Tag{Key: key, Value: val, HasValue: hasVal})
	}
	return tags, nil
}

// ParseTagValue undoes tag value escaping. A lone trailing backslash is
// dropped and any unknown escape yields the escaped character itself.
func ParseTagValue(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}

	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i == len(v) {
			break
		}
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}

// EscapeTagValue is the inverse of ParseTagValue.
func EscapeTagValue(v string) string {
	if !strings.ContainsAny(v, "; \\\r\n") {
		return v
	}

	var b strings.Builder
	b.Grow(len(v) + 8)
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case ';':
			b.WriteString(`\:`)
		case ' ':
			b.WriteString(`\s`)
		case '\\':
			b.WriteString(`\\`)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// String returns the wire form of m without a line terminator.
//
// Only the last param may contain spaces; it is written with a leading ':'
// when it is empty, contains a space or itself starts with ':'.
func (m *Message) String() string {
	var b strings.Builder

	if len(m.Tags) > 0 {
		b.WriteByte('@')
		for i, t := range m.Tags {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(t.Key)
			if t.HasValue {
				b.WriteByte('=')
				b.WriteString(EscapeTagValue(t.Value))
			}
		}
		b.WriteByte(' ')
	}

	if m.Source != "" {
		b.WriteByte(':')
		b.WriteString(m.Source)
		b.WriteByte(' ')
	}

	b.WriteString(m.Command)

	for i, p := range m.Params {
		b.WriteByte(' ')
		if i == len(m.Params)-1 && (p == "" || strings.Contains(p, " ") || p[0] == ':') {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}

	return b.String()
}

// AppendWire appends the wire form of m plus CR LF to dst.
func (m *Message) AppendWire(dst []byte) []byte {
	dst = append(dst, m.String()...)
	return append(dst, '\r', '\n')
}
