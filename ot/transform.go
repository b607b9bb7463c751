package ot

import "github.com/burntcarrot/docsync/commons"

// Transform rebases two concurrent sequences made against the same text.
// It returns ap, which applies after b, and bp, which applies after a. b
// takes priority: inserts at the same position keep b's text first.
//
// Inserted text always survives. A delete whose range contains a concurrent
// insert is split around it, and an insert inside a concurrently deleted
// range moves to the start of that range.
func Transform(a, b []commons.Operation) (ap, bp []commons.Operation) {
	if len(a) == 0 || len(b) == 0 {
		return a, b
	}

	if len(a) > 1 {
		head, b1 := Transform(a[:1:1], b)
		tail, b2 := Transform(a[1:], b1)
		return append(head, tail...), b2
	}
	if len(b) > 1 {
		a1, head := Transform(a, b[:1:1])
		a2, tail := Transform(a1, b[1:])
		return a2, append(head, tail...)
	}

	return transformOne(a[0], b[0], false), transformOne(b[0], a[0], true)
}

// transformOne rebases a over b. first is set when a wins ties between
// inserts at the same position.
func transformOne(a, b commons.Operation, first bool) []commons.Operation {
	switch a.Type {
	case commons.OpInsert:
		switch b.Type {
		case commons.OpInsert:
			if b.Pos < a.Pos || (b.Pos == a.Pos && !first) {
				a.Pos += Len(b.Text)
			}
		case commons.OpDelete:
			if a.Pos >= b.Pos+b.Len {
				a.Pos -= b.Len
			} else if a.Pos > b.Pos {
				a.Pos = b.Pos
			}
		}
		return []commons.Operation{a}

	case commons.OpDelete:
		switch b.Type {
		case commons.OpInsert:
			n := Len(b.Text)
			if b.Pos <= a.Pos {
				a.Pos += n
			} else if b.Pos < a.Pos+a.Len {
				// split around the inserted text
				before := a
				before.Len = b.Pos - a.Pos
				after := a
				after.Pos = a.Pos + n
				after.Len = a.Len - before.Len
				return []commons.Operation{before, after}
			}
		case commons.OpDelete:
			aEnd, bEnd := a.Pos+a.Len, b.Pos+b.Len
			if bEnd <= a.Pos {
				a.Pos -= b.Len
			} else if b.Pos < aEnd {
				overlap := minInt(aEnd, bEnd) - maxInt(a.Pos, b.Pos)
				a.Pos = minInt(a.Pos, b.Pos)
				a.Len -= overlap
				if a.Len == 0 {
					return nil
				}
			}
		}
		return []commons.Operation{a}
	}

	return []commons.Operation{a}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
