package pgpipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shipq/pgpipeline/pgpipeline/internal/faketest"
)

// SelectOne prepares the statement (cache miss), executes it, and
// projects the resolved RowSet down to its first row.
func TestSelectOne_ProjectsFirstRow(t *testing.T) {
	fake := faketest.NewConn([]faketest.Reply{
		{},          // PREPARE ack
		{Sync: true}, // sync closing the PREPARE batch
		rowsReply([][][]byte{
			{[]byte("3"), []byte("alice")},
			{[]byte("4"), []byte("bob")},
		}),
		{Sync: true}, // sync closing the EXECUTE batch
	})
	conn := NewWithBackend(fake, Options{})

	h, err := conn.SelectOne(context.Background(), "SELECT id, name FROM users", nil)
	if err != nil {
		t.Fatalf("SelectOne: %v", err)
	}

	rows, err := h.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	want := [][]any{{"3", "alice"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	sent := fake.Pipeline().Sent
	if len(sent) != 2 {
		t.Fatalf("expected exactly a PREPARE then an EXECUTE dispatch, got %d: %v", len(sent), sent)
	}
	if !strings.HasPrefix(sent[0], "PREPARE ") || !strings.HasPrefix(sent[1], "EXECUTE ") {
		t.Fatalf("expected SelectOne to dispatch PREPARE then EXECUTE in order, got %v", sent)
	}
}

// SelectValue projects the resolved result down to the first column of
// the first row.
func TestSelectValue_ProjectsFirstColumn(t *testing.T) {
	fake := faketest.NewConn([]faketest.Reply{
		{},
		{Sync: true},
		rowsReply([][][]byte{
			{[]byte("42"), []byte("ignored")},
		}),
		{Sync: true},
	})
	conn := NewWithBackend(fake, Options{})

	h, err := conn.SelectValue(context.Background(), "SELECT count(*), ignored FROM users", nil)
	if err != nil {
		t.Fatalf("SelectValue: %v", err)
	}

	items, err := h.Items()
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if diff := cmp.Diff([]any{"42"}, items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

// SelectAll installs no projector: the resolved RowSet keeps every row.
func TestSelectAll_KeepsEveryRow(t *testing.T) {
	fake := faketest.NewConn([]faketest.Reply{
		{},
		{Sync: true},
		rowsReply([][][]byte{
			{[]byte("3"), []byte("alice")},
			{[]byte("4"), []byte("bob")},
		}),
		{Sync: true},
	})
	conn := NewWithBackend(fake, Options{})

	h, err := conn.SelectAll(context.Background(), "SELECT id, name FROM users", nil)
	if err != nil {
		t.Fatalf("SelectAll: %v", err)
	}

	n, err := h.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
}
