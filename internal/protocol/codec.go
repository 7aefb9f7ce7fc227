// Package protocol implements the Type:(p1,p2,...) text codec, the message
// type vocabulary of each endpoint and the composite records carried in
// parameter lists.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed is returned for text that is not of the form Type:(...).
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned when the type is not in the expected family.
	ErrUnknownType = errors.New("unknown message type")
	// ErrArity is returned when a parameter list has the wrong length.
	ErrArity = errors.New("wrong parameter count")
)

// Message is one decoded protocol message.
type Message struct {
	Type   Type
	Params []string
}

// New builds a Message.
func New(t Type, params ...string) Message {
	return Message{Type: t, Params: params}
}

// Encode renders m as Type:(p1,p2,...). Backslash, comma and parentheses in
// a parameter are escaped with a backslash; other text is written verbatim.
func (m Message) Encode() string {
	var b strings.Builder
	b.WriteString(string(m.Type))
	b.WriteString(":(")
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		escape(&b, p)
	}
	b.WriteByte(')')
	return b.String()
}

// String is Encode.
func (m Message) String() string { return m.Encode() }

// Param returns parameter i or the empty string when absent.
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Expect fails with ErrArity unless m carries at least n parameters.
func (m Message) Expect(n int) error {
	if len(m.Params) < n {
		return fmt.Errorf("%w: %s wants %d, got %d", ErrArity, m.Type, n, len(m.Params))
	}
	return nil
}

func escape(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', ',', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
}

// Decode parses raw and checks its type belongs to family f.
// An empty parameter list "()" yields zero parameters.
func Decode(raw string, f Family) (Message, error) {
	name, rest, ok := strings.Cut(raw, ":")
	if !ok || name == "" {
		return Message{}, fmt.Errorf("%w: missing type separator", ErrMalformed)
	}
	t := Type(name)
	if !f.Has(t) {
		return Message{}, fmt.Errorf("%w: %q in %s", ErrUnknownType, name, f)
	}
	if len(rest) < 2 || rest[0] != '(' || rest[len(rest)-1] != ')' {
		return Message{}, fmt.Errorf("%w: parameters must be enclosed in parentheses", ErrMalformed)
	}
	params, err := splitParams(rest[1 : len(rest)-1])
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Params: params}, nil
}

func splitParams(body string) ([]string, error) {
	if body == "" {
		return nil, nil
	}
	var (
		params []string
		cur    strings.Builder
	)
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch c {
		case '\\':
			if i+1 >= len(body) {
				return nil, fmt.Errorf("%w: dangling escape", ErrMalformed)
			}
			i++
			cur.WriteByte(body[i])
		case ',':
			params = append(params, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(params, cur.String()), nil
}
