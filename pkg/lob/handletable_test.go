package lob

import (
	"context"
	"errors"
	"testing"
)

// stubStream is the minimal ObjectStream for table-level tests.
type stubStream struct {
	id int
}

func (s *stubStream) Read(context.Context, []byte) (int, error)  { return 0, nil }
func (s *stubStream) Write(context.Context, []byte) (int, error) { return 0, nil }
func (s *stubStream) Seek(int64, int) (int64, error)             { return 0, nil }
func (s *stubStream) Tell() (int64, error)                       { return 0, nil }
func (s *stubStream) Close(context.Context) error                { return nil }
func (s *stubStream) CleanupIndex(context.Context) error         { return nil }

func TestAllocateAscendingFirstFit(t *testing.T) {
	var table HandleTable

	for i := 0; i < 10; i++ {
		h, err := table.Allocate(&stubStream{id: i})
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		if h != Handle(i) {
			t.Errorf("Allocate #%d = %d, want %d", i, h, i)
		}
	}

	// Freeing a middle slot makes it the next allocation target.
	table.Release(4)
	h, err := table.Allocate(&stubStream{id: 99})
	if err != nil {
		t.Fatalf("Allocate after release: %v", err)
	}
	if h != 4 {
		t.Errorf("Allocate reused %d, want 4", h)
	}
}

func TestLookupErrors(t *testing.T) {
	var table HandleTable

	if _, err := table.Lookup(-1); !errors.Is(err, ErrHandleOutOfRange) {
		t.Errorf("Lookup(-1) = %v, want ErrHandleOutOfRange", err)
	}
	if _, err := table.Lookup(MaxHandles); !errors.Is(err, ErrHandleOutOfRange) {
		t.Errorf("Lookup(%d) = %v, want ErrHandleOutOfRange", MaxHandles, err)
	}
	if _, err := table.Lookup(0); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Lookup(empty) = %v, want ErrInvalidHandle", err)
	}

	stream := &stubStream{}
	h, _ := table.Allocate(stream)
	got, err := table.Lookup(h)
	if err != nil || got != stream {
		t.Errorf("Lookup(live) = (%v, %v), want the registered stream", got, err)
	}
}

func TestExhaustionLeavesTableUnchanged(t *testing.T) {
	var table HandleTable

	for i := 0; i < MaxHandles; i++ {
		if _, err := table.Allocate(&stubStream{id: i}); err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
	}
	if table.Live() != MaxHandles {
		t.Fatalf("Live = %d, want %d", table.Live(), MaxHandles)
	}

	if _, err := table.Allocate(&stubStream{}); !errors.Is(err, ErrHandlesExhausted) {
		t.Fatalf("Allocate #257 = %v, want ErrHandlesExhausted", err)
	}
	if table.Live() != MaxHandles {
		t.Errorf("occupancy changed on failed allocate: %d", table.Live())
	}
}

func TestReleaseIdempotentAtTableLevel(t *testing.T) {
	var table HandleTable

	h, _ := table.Allocate(&stubStream{})
	table.Release(h)
	if table.Live() != 0 {
		t.Fatalf("Live after release = %d", table.Live())
	}

	// Releasing an empty or out-of-range slot is a no-op.
	table.Release(h)
	table.Release(-5)
	table.Release(MaxHandles + 1)
	if table.Live() != 0 {
		t.Errorf("Live after redundant releases = %d", table.Live())
	}
}

func TestWalkVisitsSlotOrder(t *testing.T) {
	var table HandleTable

	for i := 0; i < 5; i++ {
		table.Allocate(&stubStream{id: i})
	}
	table.Release(1)
	table.Release(3)

	var visited []Handle
	table.walk(func(h Handle, _ ObjectStream) {
		visited = append(visited, h)
	})

	want := []Handle{0, 2, 4}
	if len(visited) != len(want) {
		t.Fatalf("walk visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("walk visited %v, want %v", visited, want)
		}
	}
}
