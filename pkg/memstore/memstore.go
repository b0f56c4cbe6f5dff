// Package memstore provides an in-memory backing store for the large-object
// runtime. It backs the core tests and the daemon's dev mode; nothing it
// holds survives the process.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dd0wney/cluso-lobstore/pkg/lob"
)

// ErrUnknownObject is returned for ids that were never created or were
// dropped.
var ErrUnknownObject = errors.New("unknown object")

// ErrStreamClosed is returned for operations on a closed stream.
var ErrStreamClosed = errors.New("stream closed")

// Store is an in-memory lob.ObjectStore. It is safe for concurrent use by
// multiple sessions; individual streams are not.
type Store struct {
	mu      sync.RWMutex
	objects map[lob.ObjectID][]byte
	nextID  lob.ObjectID

	cleanupCalls atomic.Int64
}

// New creates an empty store. Object ids start at 1.
func New() *Store {
	return &Store{
		objects: make(map[lob.ObjectID][]byte),
		nextID:  1,
	}
}

// Open implements lob.ObjectStore.
func (s *Store) Open(_ context.Context, id lob.ObjectID, mode int) (lob.ObjectStream, error) {
	s.mu.RLock()
	_, ok := s.objects[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	return &stream{store: s, id: id, mode: mode}, nil
}

// Create implements lob.ObjectStore.
func (s *Store) Create(_ context.Context, mode int) (lob.ObjectStream, lob.ObjectID, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.objects[id] = nil
	s.mu.Unlock()
	return &stream{store: s, id: id, mode: mode}, id, nil
}

// Drop implements lob.ObjectStore. Streams already open on id are not
// invalidated eagerly; their next access fails with ErrUnknownObject.
func (s *Store) Drop(_ context.Context, id lob.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	delete(s.objects, id)
	return nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Content returns a copy of the bytes stored under id.
func (s *Store) Content(id lob.ObjectID) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// CleanupCalls returns how many commit-time cleanup hooks have run against
// this store's streams.
func (s *Store) CleanupCalls() int64 {
	return s.cleanupCalls.Load()
}

type stream struct {
	store  *Store
	id     lob.ObjectID
	mode   int
	pos    int64
	closed bool
}

func (st *stream) Read(_ context.Context, p []byte) (int, error) {
	if st.closed {
		return 0, ErrStreamClosed
	}
	if !lob.IsReadAllowed(st.mode) {
		return 0, lob.ErrModeNotPermitted
	}

	st.store.mu.RLock()
	data, ok := st.store.objects[st.id]
	st.store.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownObject, st.id)
	}

	if st.pos >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[st.pos:])
	st.pos += int64(n)
	return n, nil
}

func (st *stream) Write(_ context.Context, p []byte) (int, error) {
	if st.closed {
		return 0, ErrStreamClosed
	}
	if !lob.IsWriteAllowed(st.mode) {
		return 0, lob.ErrModeNotPermitted
	}

	st.store.mu.Lock()
	defer st.store.mu.Unlock()
	data, ok := st.store.objects[st.id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownObject, st.id)
	}

	end := st.pos + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[st.pos:], p)
	st.store.objects[st.id] = data
	st.pos = end
	return len(p), nil
}

func (st *stream) Seek(offset int64, whence int) (int64, error) {
	if st.closed {
		return 0, ErrStreamClosed
	}

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = st.pos
	case io.SeekEnd:
		st.store.mu.RLock()
		base = int64(len(st.store.objects[st.id]))
		st.store.mu.RUnlock()
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("negative position %d", pos)
	}
	st.pos = pos
	return pos, nil
}

func (st *stream) Tell() (int64, error) {
	if st.closed {
		return 0, ErrStreamClosed
	}
	return st.pos, nil
}

func (st *stream) Close(_ context.Context) error {
	if st.closed {
		return ErrStreamClosed
	}
	st.closed = true
	return nil
}

func (st *stream) CleanupIndex(_ context.Context) error {
	if st.closed {
		return ErrStreamClosed
	}
	st.store.cleanupCalls.Add(1)
	return nil
}
