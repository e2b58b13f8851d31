package flujos

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize bounds user and operator text, in bytes, unless WithMaxInputSize is given.
const DefaultMaxInputSize = 4096

var (
	ErrInputTooLarge = errors.New("text exceeds the size limit")
	ErrInvalidUTF8   = errors.New("text is not valid UTF-8")
)

// cleanText applies the engine's input policy to text coming from a user or an operator.
// Text over the limit is rejected, never cut, so a stored reply is always what was sent.
// Control characters other than newline, tab and carriage return are dropped.
func (e *Engine) cleanText(texto string) (string, error) {
	if len(texto) > e.maxInputSize {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrInputTooLarge, len(texto), e.maxInputSize)
	}
	if !utf8.ValidString(texto) {
		return "", ErrInvalidUTF8
	}
	return strings.Map(dropControl, texto), nil
}

func dropControl(r rune) rune {
	switch {
	case r == '\n', r == '\t', r == '\r':
		return r
	case unicode.IsControl(r):
		return -1
	}
	return r
}
