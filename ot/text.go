// Package ot implements the client side text operations: computing the edit
// between two snapshots, applying positional operations, and moving a caret
// through remote operations.
//
// Every position and length is counted in UTF-16 code units, the unit the
// server and browser clients use.
package ot

import (
	"errors"
	"fmt"
	"unicode/utf16"

	"github.com/burntcarrot/docsync/commons"
)

var (
	ErrOutOfBounds   = errors.New("operation out of bounds")
	ErrNotPositional = errors.New("operation is not positional")
)

// Len returns the length of s in UTF-16 code units.
func Len(s string) int {
	n := 0
	for _, r := range s {
		n += units(r)
	}
	return n
}

// units is the number of UTF-16 code units r encodes to.
func units(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

func encode(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

func decode(u []uint16) string {
	return string(utf16.Decode(u))
}

func isHighSurrogate(u uint16) bool {
	return u >= 0xd800 && u < 0xdc00
}

func isLowSurrogate(u uint16) bool {
	return u >= 0xdc00 && u < 0xe000
}

// Apply applies an insert or delete to content.
func Apply(content string, op commons.Operation) (string, error) {
	if err := op.Validate(); err != nil {
		return content, err
	}

	u := encode(content)

	switch op.Type {
	case commons.OpInsert:
		if op.Pos > len(u) {
			return content, fmt.Errorf("%w: insert at %d, length %d", ErrOutOfBounds, op.Pos, len(u))
		}
		text := encode(op.Text)
		out := make([]uint16, 0, len(u)+len(text))
		out = append(out, u[:op.Pos]...)
		out = append(out, text...)
		out = append(out, u[op.Pos:]...)
		return decode(out), nil

	case commons.OpDelete:
		if op.Pos+op.Len > len(u) {
			return content, fmt.Errorf("%w: delete %d+%d, length %d", ErrOutOfBounds, op.Pos, op.Len, len(u))
		}
		out := make([]uint16, 0, len(u)-op.Len)
		out = append(out, u[:op.Pos]...)
		out = append(out, u[op.Pos+op.Len:]...)
		return decode(out), nil
	}

	return content, fmt.Errorf("%w: %s", ErrNotPositional, op.Type)
}

// ApplyAll applies ops in order.
func ApplyAll(content string, ops []commons.Operation) (string, error) {
	var err error
	for i, op := range ops {
		content, err = Apply(content, op)
		if err != nil {
			return content, fmt.Errorf("op %d: %w", i, err)
		}
	}
	return content, nil
}

// Slice returns content[start:end] in UTF-16 code units, clamped to the
// content's bounds.
func Slice(content string, start, end int) string {
	u := encode(content)
	if start < 0 {
		start = 0
	}
	if end > len(u) {
		end = len(u)
	}
	if start >= end {
		return ""
	}
	return decode(u[start:end])
}

// RuneToUnit converts a rune index into text to a UTF-16 offset.
func RuneToUnit(text []rune, index int) int {
	if index > len(text) {
		index = len(text)
	}
	n := 0
	for _, r := range text[:index] {
		n += units(r)
	}
	return n
}

// UnitToRune converts a UTF-16 offset into text to a rune index. An offset
// inside a surrogate pair maps to the rune that starts the pair.
func UnitToRune(text []rune, offset int) int {
	n := 0
	for i, r := range text {
		w := units(r)
		if n+w > offset {
			return i
		}
		n += w
	}
	return len(text)
}
