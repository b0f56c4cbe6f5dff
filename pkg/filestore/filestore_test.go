package filestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/dd0wney/cluso-lobstore/pkg/lob"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open store: %v", err)
	}
	return store
}

func TestCreateWriteReopenRead(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	stream, id, err := store.Create(ctx, lob.ModeReadWrite)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := bytes.Repeat([]byte("abc"), 1000)
	if n, err := stream.Write(ctx, payload); err != nil || n != len(payload) {
		t.Fatalf("Write = (%d, %v)", n, err)
	}
	if err := stream.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Read-only open goes through the memory map.
	ro, err := store.Open(ctx, id, lob.ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ro.Close(ctx)

	got := make([]byte, len(payload))
	n, err := ro.Read(ctx, got)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("Read: %v", err)
	}
	if n != len(payload) || !bytes.Equal(got, payload) {
		t.Errorf("read %d bytes, content match=%v", n, bytes.Equal(got, payload))
	}

	if _, err := ro.Write(ctx, []byte("x")); !errors.Is(err, lob.ErrModeNotPermitted) {
		t.Errorf("Write on mmap stream = %v, want ErrModeNotPermitted", err)
	}
}

func TestIDAllocationSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s1, id1, err := store.Create(ctx, lob.ModeReadWrite)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s1.Close(ctx)

	// A second store over the same dir must not re-issue id1.
	store2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2, id2, err := store2.Create(ctx, lob.ModeReadWrite)
	if err != nil {
		t.Fatalf("Create after reopen: %v", err)
	}
	s2.Close(ctx)

	if id2 <= id1 {
		t.Errorf("id2 = %d not greater than id1 = %d", id2, id1)
	}
}

func TestOpenAndDropUnknown(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Open(ctx, 77, lob.ModeRead); !errors.Is(err, ErrUnknownObject) {
		t.Errorf("Open unknown = %v, want ErrUnknownObject", err)
	}
	if err := store.Drop(ctx, 77); !errors.Is(err, ErrUnknownObject) {
		t.Errorf("Drop unknown = %v, want ErrUnknownObject", err)
	}
}

func TestDropRemovesFile(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	stream, id, _ := store.Create(ctx, lob.ModeReadWrite)
	stream.Close(ctx)

	if err := store.Drop(ctx, id); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, err := store.Open(ctx, id, lob.ModeRead); !errors.Is(err, ErrUnknownObject) {
		t.Errorf("Open after Drop = %v, want ErrUnknownObject", err)
	}
}

func TestSeekAcrossWrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	stream, _, _ := store.Create(ctx, lob.ModeReadWrite)
	defer stream.Close(ctx)

	stream.Write(ctx, []byte("0123456789"))
	if pos, err := stream.Seek(-4, io.SeekEnd); err != nil || pos != 6 {
		t.Fatalf("SeekEnd = (%d, %v), want (6, nil)", pos, err)
	}
	stream.Write(ctx, []byte("XXXX"))

	stream.Seek(0, io.SeekStart)
	got := make([]byte, 10)
	n, err := stream.Read(ctx, got)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("Read: %v", err)
	}
	if string(got[:n]) != "012345XXXX" {
		t.Errorf("content = %q", got[:n])
	}

	if pos, err := stream.Tell(); err != nil || pos != 10 {
		t.Errorf("Tell = (%d, %v), want (10, nil)", pos, err)
	}
}

func TestSessionEndToEndOverFilestore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	session := lob.NewSession(store, lob.SessionOptions{})

	id, err := session.Create(ctx, lob.ModeReadWrite)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h, err := session.Open(ctx, id, lob.ModeReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := session.Write(ctx, h, []byte("persisted")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := session.EndTransaction(ctx, true); err != nil {
		t.Fatalf("EndTransaction: %v", err)
	}

	// Next transaction reads the committed bytes back.
	h, err = session.Open(ctx, id, lob.ModeRead)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	data, err := session.Read(ctx, h, 100)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "persisted" {
		t.Errorf("Read = %q", data)
	}
	session.EndTransaction(ctx, false)
}
