package ot

import "github.com/burntcarrot/docsync/commons"

// TransformCaret moves a caret through a remote operation so it stays next
// to the same text. It must not be used for the local user's own edits.
func TransformCaret(caret int, op commons.Operation) int {
	switch op.Type {
	case commons.OpInsert:
		if op.Pos <= caret {
			return caret + Len(op.Text)
		}

	case commons.OpDelete:
		if op.Pos < caret {
			shift := op.Len
			if caret-op.Pos < shift {
				shift = caret - op.Pos
			}
			return caret - shift
		}
	}

	return caret
}
