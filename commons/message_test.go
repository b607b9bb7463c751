package commons

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOperationMarshal(t *testing.T) {
	tests := []struct {
		description string
		op          Operation
		expected    string
	}{
		{description: "insert", op: Operation{Type: OpInsert, Pos: 5, Text: " world", Version: 3},
			expected: `{"type":"insert","pos":5,"text":" world","version":3}`},
		{description: "delete", op: Operation{Type: OpDelete, Pos: 5, Len: 6, Version: 0},
			expected: `{"type":"delete","pos":5,"len":6,"version":0}`},
		{description: "undo", op: Operation{Type: OpUndo, Version: 9},
			expected: `{"type":"undo"}`},
	}

	for _, tc := range tests {
		b, err := json.Marshal(tc.op)
		if err != nil {
			t.Fatalf("(%s) marshal error: %v", tc.description, err)
		}
		if !cmp.Equal(string(b), tc.expected) {
			t.Errorf("(%s) got != expected, diff: %v\n", tc.description, cmp.Diff(string(b), tc.expected))
		}
	}
}

func TestParseServerMessage(t *testing.T) {
	content := "hello"
	seven := uint64(7)

	tests := []struct {
		description string
		data        string
		expected    ServerMessage
		wantErr     bool
	}{
		{description: "initial state without content", data: `{"type":"initial_state","version":4}`,
			expected: ServerMessage{Type: InitialStateMessage, Version: 4}},
		{description: "initial state with content", data: `{"type":"initial_state","content":"hello","version":4}`,
			expected: ServerMessage{Type: InitialStateMessage, Content: &content, Version: 4}},
		{description: "operation", data: `{"type":"operation","op":{"type":"insert","pos":5,"text":" world","version":4}}`,
			expected: ServerMessage{Type: OperationMessage, Op: &Operation{Type: OpInsert, Pos: 5, Text: " world", Version: 4}}},
		{description: "out of sync", data: `{"type":"out_of_sync","content":"hello","version":2}`,
			expected: ServerMessage{Type: OutOfSyncMessage, Content: &content, Version: 2}},
		{description: "conflict", data: `{"type":"error","code":"CONFLICT","message":"stale","current_version":7}`,
			expected: ServerMessage{Type: ErrorMessage, Code: CodeConflict, Message: "stale", CurrentVersion: &seven}},

		{description: "not json", data: `{"type":`, wantErr: true},
		{description: "unknown type", data: `{"type":"cursor"}`, wantErr: true},
		{description: "operation without op", data: `{"type":"operation"}`, wantErr: true},
		{description: "negative position", data: `{"type":"operation","op":{"type":"delete","pos":-1,"len":1}}`, wantErr: true},
		{description: "out of sync without content", data: `{"type":"out_of_sync","version":2}`, wantErr: true},
		{description: "error without code", data: `{"type":"error","message":"x"}`, wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParseServerMessage([]byte(tc.data))
		if tc.wantErr {
			if err == nil {
				t.Errorf("(%s) expected error, got %+v", tc.description, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("(%s) unexpected error: %v", tc.description, err)
			continue
		}
		if !cmp.Equal(got, tc.expected) {
			t.Errorf("(%s) got != expected, diff: %v\n", tc.description, cmp.Diff(got, tc.expected))
		}
	}
}

func TestSameShape(t *testing.T) {
	tests := []struct {
		description string
		a, b        Operation
		expected    bool
	}{
		{description: "same insert, different version", a: Operation{Type: OpInsert, Pos: 1, Text: "a", Version: 1},
			b: Operation{Type: OpInsert, Pos: 1, Text: "a", Version: 2}, expected: true},
		{description: "different text", a: Insert(1, "a"), b: Insert(1, "b"), expected: false},
		{description: "different position", a: Insert(1, "a"), b: Insert(2, "a"), expected: false},
		{description: "same delete", a: Delete(3, 2), b: Delete(3, 2), expected: true},
		{description: "different length", a: Delete(3, 2), b: Delete(3, 1), expected: false},
		{description: "different type", a: Insert(0, "a"), b: Delete(0, 1), expected: false},
	}

	for _, tc := range tests {
		if got := tc.a.SameShape(tc.b); got != tc.expected {
			t.Errorf("(%s) got = %v, expected = %v", tc.description, got, tc.expected)
		}
	}
}

func TestErrorIs(t *testing.T) {
	v := uint64(7)
	err := error(&Error{Code: CodeConflict, Message: "stale", CurrentVersion: &v})

	if !errors.Is(err, &Error{Code: CodeConflict}) {
		t.Errorf("expected conflict error to match by code")
	}
	if errors.Is(err, &Error{Code: CodeForbidden}) {
		t.Errorf("conflict error must not match forbidden")
	}
	if got, want := err.Error(), "CONFLICT: stale (current version 7)"; got != want {
		t.Errorf("got = %q, expected = %q", got, want)
	}
}
