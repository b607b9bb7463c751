package ot

import "github.com/burntcarrot/docsync/commons"

// Diff returns the operations that turn oldText into newText: nothing when the
// texts are equal, a single insert or delete for pure edits, and a delete
// followed by an insert when a range was replaced. The returned operations
// carry no version.
//
// Diff runs one forward and one backward scan, so it stays linear in the
// length of the texts.
func Diff(oldText, newText string) []commons.Operation {
	if oldText == newText {
		return nil
	}

	a, b := encode(oldText), encode(newText)

	// Common prefix.
	p := 0
	for p < len(a) && p < len(b) && a[p] == b[p] {
		p++
	}
	if p > 0 && isHighSurrogate(a[p-1]) {
		p--
	}

	// Common suffix, never crossing the prefix.
	oldEnd, newEnd := len(a), len(b)
	for oldEnd > p && newEnd > p && a[oldEnd-1] == b[newEnd-1] {
		oldEnd--
		newEnd--
	}
	if oldEnd < len(a) && isLowSurrogate(a[oldEnd]) {
		oldEnd++
		newEnd++
	}

	removed := oldEnd - p
	inserted := newEnd - p

	var ops []commons.Operation
	if removed > 0 {
		ops = append(ops, commons.Delete(p, removed))
	}
	if inserted > 0 {
		ops = append(ops, commons.Insert(p, decode(b[p:newEnd])))
	}
	return ops
}
