// Package filestore provides a directory-backed object store for the
// large-object runtime. Each object lives in its own file; read-only opens
// go through a memory map, read-write opens through ordinary file handles.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/exp/mmap"

	"github.com/dd0wney/cluso-lobstore/pkg/lob"
)

// ErrUnknownObject is returned for ids with no backing file.
var ErrUnknownObject = errors.New("unknown object")

const seqFile = "SEQ"

// Store is a directory-backed lob.ObjectStore. Id allocation is serialized
// through the store; streams are single-owner as usual.
type Store struct {
	dir string

	mu     sync.Mutex
	nextID lob.ObjectID
}

// Open opens (creating if needed) a store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	s := &Store{dir: dir, nextID: 1}
	data, err := os.ReadFile(filepath.Join(dir, seqFile))
	switch {
	case err == nil:
		n, perr := strconv.ParseUint(string(data), 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("corrupt sequence file: %w", perr)
		}
		s.nextID = lob.ObjectID(n)
	case os.IsNotExist(err):
		// Fresh store.
	default:
		return nil, fmt.Errorf("reading sequence file: %w", err)
	}
	return s, nil
}

func (s *Store) objectPath(id lob.ObjectID) string {
	return filepath.Join(s.dir, strconv.FormatUint(uint64(id), 10)+".lob")
}

func (s *Store) allocID() (lob.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	next := []byte(strconv.FormatUint(uint64(id+1), 10))
	if err := os.WriteFile(filepath.Join(s.dir, seqFile), next, 0o644); err != nil {
		return lob.InvalidObjectID, fmt.Errorf("persisting sequence: %w", err)
	}
	s.nextID = id + 1
	return id, nil
}

// Open implements lob.ObjectStore.
func (s *Store) Open(_ context.Context, id lob.ObjectID, mode int) (lob.ObjectStream, error) {
	path := s.objectPath(id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownObject, id)
		}
		return nil, err
	}

	if !lob.IsWriteAllowed(mode) {
		r, err := mmap.Open(path)
		if err != nil {
			return nil, fmt.Errorf("mapping object %d: %w", id, err)
		}
		return &mmapStream{r: r, mode: mode}, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening object %d: %w", id, err)
	}
	return &fileStream{f: f, mode: mode}, nil
}

// Create implements lob.ObjectStore.
func (s *Store) Create(_ context.Context, mode int) (lob.ObjectStream, lob.ObjectID, error) {
	id, err := s.allocID()
	if err != nil {
		return nil, lob.InvalidObjectID, err
	}

	f, err := os.OpenFile(s.objectPath(id), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, lob.InvalidObjectID, fmt.Errorf("creating object %d: %w", id, err)
	}
	return &fileStream{f: f, mode: mode}, id, nil
}

// Drop implements lob.ObjectStore.
func (s *Store) Drop(_ context.Context, id lob.ObjectID) error {
	err := os.Remove(s.objectPath(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	return err
}

// fileStream serves read-write opens.
type fileStream struct {
	f    *os.File
	mode int
	pos  int64
}

func (st *fileStream) Read(_ context.Context, p []byte) (int, error) {
	if !lob.IsReadAllowed(st.mode) {
		return 0, lob.ErrModeNotPermitted
	}
	n, err := st.f.ReadAt(p, st.pos)
	st.pos += int64(n)
	return n, err
}

func (st *fileStream) Write(_ context.Context, p []byte) (int, error) {
	if !lob.IsWriteAllowed(st.mode) {
		return 0, lob.ErrModeNotPermitted
	}
	n, err := st.f.WriteAt(p, st.pos)
	st.pos += int64(n)
	return n, err
}

func (st *fileStream) Seek(offset int64, whence int) (int64, error) {
	pos, err := seekPosition(st.pos, offset, whence, func() (int64, error) {
		info, err := st.f.Stat()
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	})
	if err != nil {
		return 0, err
	}
	st.pos = pos
	return pos, nil
}

func (st *fileStream) Tell() (int64, error) {
	return st.pos, nil
}

func (st *fileStream) Close(_ context.Context) error {
	return st.f.Close()
}

// CleanupIndex flushes buffered writes at commit time.
func (st *fileStream) CleanupIndex(_ context.Context) error {
	return st.f.Sync()
}

// mmapStream serves read-only opens through a memory map.
type mmapStream struct {
	r    *mmap.ReaderAt
	mode int
	pos  int64
}

func (st *mmapStream) Read(_ context.Context, p []byte) (int, error) {
	n, err := st.r.ReadAt(p, st.pos)
	st.pos += int64(n)
	return n, err
}

func (st *mmapStream) Write(context.Context, []byte) (int, error) {
	return 0, lob.ErrModeNotPermitted
}

func (st *mmapStream) Seek(offset int64, whence int) (int64, error) {
	pos, err := seekPosition(st.pos, offset, whence, func() (int64, error) {
		return int64(st.r.Len()), nil
	})
	if err != nil {
		return 0, err
	}
	st.pos = pos
	return pos, nil
}

func (st *mmapStream) Tell() (int64, error) {
	return st.pos, nil
}

func (st *mmapStream) Close(_ context.Context) error {
	return st.r.Close()
}

func (st *mmapStream) CleanupIndex(_ context.Context) error {
	return nil
}

func seekPosition(cur, offset int64, whence int, size func() (int64, error)) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = cur
	case io.SeekEnd:
		end, err := size()
		if err != nil {
			return 0, err
		}
		base = end
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("negative position %d", pos)
	}
	return pos, nil
}
