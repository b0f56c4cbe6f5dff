package lob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dd0wney/cluso-lobstore/pkg/logging"
)

// Authorizer gates privileged operations. Authorize returns nil to allow
// the named operation or an error (conventionally wrapping
// ErrPermissionDenied) to reject it.
type Authorizer interface {
	Authorize(ctx context.Context, op string) error
}

// AuthorizeFunc adapts a function to the Authorizer interface.
type AuthorizeFunc func(ctx context.Context, op string) error

// Authorize implements Authorizer.
func (f AuthorizeFunc) Authorize(ctx context.Context, op string) error {
	return f(ctx, op)
}

// Metrics receives operational measurements from a session. Implementations
// must be safe for use from multiple sessions. All methods are optional in
// the sense that a nil Metrics disables recording.
type Metrics interface {
	SetOpenHandles(n int)
	RecordOpen(status string)
	RecordTransactionEnd(outcome string, handlesClosed int)
	RecordTransfer(direction string, bytes int64, status string)
}

// SessionOptions configures a Session. The zero value is usable: no
// authorizer (import/export denied), no metrics, discarded logs.
type SessionOptions struct {
	// Authorizer gates import and export. When nil both are denied;
	// auth.AllowAll restores the historical unprivileged behavior.
	Authorizer Authorizer

	Logger  logging.Logger
	Metrics Metrics
}

// Session is the per-transaction context for large-object access. It owns
// the handle table and the transaction's arena, and must only be used by
// one logical thread of control at a time.
//
// After EndTransaction the session is reusable for a subsequent
// transaction; the handle space is recycled only through that teardown.
type Session struct {
	store   ObjectStore
	gate    Authorizer
	log     logging.Logger
	metrics Metrics

	table HandleTable
	arena *Arena // nil while the transaction has not touched this subsystem
}

// NewSession creates a session over store.
func NewSession(store ObjectStore, opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Session{
		store:   store,
		gate:    opts.Authorizer,
		log:     logger,
		metrics: opts.Metrics,
	}
}

// Active reports whether the current transaction has opened this subsystem
// (i.e. the arena exists).
func (s *Session) Active() bool {
	return s.arena != nil
}

// LiveHandles returns the number of occupied handle slots.
func (s *Session) LiveHandles() int {
	return s.table.Live()
}

// ensureArena returns the transaction's arena, creating it on first use.
func (s *Session) ensureArena() *Arena {
	if s.arena == nil {
		s.arena = newArena()
	}
	return s.arena
}

// Open opens an existing object and registers the stream under a new
// handle. The table is left unchanged when the backing store refuses the
// open. When every slot is occupied the stream is closed again and
// ErrHandlesExhausted is returned.
func (s *Session) Open(ctx context.Context, id ObjectID, mode int) (Handle, error) {
	arena := s.ensureArena()

	stream, err := arena.open(ctx, s.store, id, mode)
	if err != nil {
		s.recordOpen("error")
		return -1, objectErr("lo_open", id, fmt.Errorf("%w: %w", ErrBackingStore, err))
	}

	h, err := s.table.Allocate(stream)
	if err != nil {
		// The stream never made it into the table; release it now instead
		// of letting it linger until transaction end.
		if cerr := arena.close(ctx, stream); cerr != nil {
			s.log.Warn("lo_open: closing stream after slot exhaustion failed",
				logging.Err(cerr))
		}
		s.recordOpen("exhausted")
		return -1, objectErr("lo_open", id, err)
	}

	s.log.Debug("lo_open", logging.Uint64("oid", uint64(id)),
		logging.Int("mode", mode), logging.Int("fd", int(h)))
	s.recordOpen("ok")
	s.syncHandleGauge()
	return h, nil
}

// Close closes the stream under h and frees its slot. The slot is freed
// even when the underlying close reports an error.
func (s *Session) Close(ctx context.Context, h Handle) error {
	stream, err := s.table.Lookup(h)
	if err != nil {
		return handleErr("lo_close", h, err)
	}

	cerr := s.arena.close(ctx, stream)
	s.table.Release(h)
	s.syncHandleGauge()
	s.log.Debug("lo_close", logging.Int("fd", int(h)))

	if cerr != nil {
		return handleErr("lo_close", h, fmt.Errorf("%w: %w", ErrBackingStore, cerr))
	}
	return nil
}

// Read reads up to length bytes from the stream under h. The returned
// slice is shorter than length when the object is exhausted first; at end
// of object it is empty.
func (s *Session) Read(ctx context.Context, h Handle, length int) ([]byte, error) {
	stream, err := s.table.Lookup(h)
	if err != nil {
		return nil, handleErr("lo_read", h, err)
	}
	if length < 0 {
		length = 0
	}

	buf := make([]byte, length)
	n, err := stream.Read(ctx, buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, handleErr("lo_read", h, fmt.Errorf("%w: %w", ErrBackingStore, err))
	}
	return buf[:n], nil
}

// Write writes data to the stream under h and returns the number of bytes
// accepted by the backing store.
func (s *Session) Write(ctx context.Context, h Handle, data []byte) (int, error) {
	stream, err := s.table.Lookup(h)
	if err != nil {
		return 0, handleErr("lo_write", h, err)
	}

	n, err := stream.Write(ctx, data)
	if err != nil {
		return n, handleErr("lo_write", h, fmt.Errorf("%w: %w", ErrBackingStore, err))
	}
	return n, nil
}

// Seek repositions the stream under h and returns the new offset.
func (s *Session) Seek(h Handle, offset int64, whence int) (int64, error) {
	stream, err := s.table.Lookup(h)
	if err != nil {
		return 0, handleErr("lo_lseek", h, err)
	}

	pos, err := stream.Seek(offset, whence)
	if err != nil {
		return 0, handleErr("lo_lseek", h, fmt.Errorf("%w: %w", ErrBackingStore, err))
	}
	return pos, nil
}

// Tell returns the current offset of the stream under h.
func (s *Session) Tell(h Handle) (int64, error) {
	stream, err := s.table.Lookup(h)
	if err != nil {
		return 0, handleErr("lo_tell", h, err)
	}

	pos, err := stream.Tell()
	if err != nil {
		return 0, handleErr("lo_tell", h, fmt.Errorf("%w: %w", ErrBackingStore, err))
	}
	return pos, nil
}

// Create allocates a new object and returns its id. The creation stream is
// closed immediately; callers that want to write open the id afterwards.
func (s *Session) Create(ctx context.Context, mode int) (ObjectID, error) {
	arena := s.ensureArena()

	stream, id, err := arena.create(ctx, s.store, mode)
	if err != nil {
		return InvalidObjectID, objectErr("lo_creat", InvalidObjectID,
			fmt.Errorf("%w: %w", ErrBackingStore, err))
	}
	if err := arena.close(ctx, stream); err != nil {
		return InvalidObjectID, objectErr("lo_creat", id,
			fmt.Errorf("%w: %w", ErrBackingStore, err))
	}

	s.log.Debug("lo_creat", logging.Uint64("oid", uint64(id)))
	return id, nil
}

// Unlink drops the object id from the backing store. Handles still open on
// the object are not invalidated; they remain usable until closed or the
// transaction ends.
func (s *Session) Unlink(ctx context.Context, id ObjectID) error {
	if err := s.store.Drop(ctx, id); err != nil {
		return objectErr("lo_unlink", id, fmt.Errorf("%w: %w", ErrBackingStore, err))
	}
	s.log.Debug("lo_unlink", logging.Uint64("oid", uint64(id)))
	return nil
}

// EndTransaction is invoked by the surrounding runtime exactly once per
// transaction, after all user-level operations have completed. Transactions
// that never touched this subsystem pay nothing. Otherwise every occupied
// slot is visited in slot order: on commit the stream's commit-time index
// cleanup runs before the slot is forgotten, on abort the hook is skipped
// because the stream's backing relation may no longer be valid. The slot is
// cleared unconditionally, the arena is destroyed, and every handle from
// the transaction becomes invalid.
func (s *Session) EndTransaction(ctx context.Context, isCommit bool) error {
	if s.arena == nil {
		return nil
	}

	var firstErr error
	closed := 0
	s.table.walk(func(h Handle, stream ObjectStream) {
		if isCommit {
			if err := stream.CleanupIndex(ctx); err != nil {
				s.log.Warn("commit-time index cleanup failed",
					logging.Int("fd", int(h)), logging.Err(err))
				if firstErr == nil {
					firstErr = handleErr("lo_commit", h, err)
				}
			}
		}
		s.table.Release(h)
		closed++
	})

	if err := s.arena.destroy(ctx); err != nil && firstErr == nil {
		firstErr = &Error{Op: "lo_commit", Handle: -1, Cause: err}
	}
	s.arena = nil

	outcome := "abort"
	if isCommit {
		outcome = "commit"
	}
	s.log.Debug("transaction end", logging.String("outcome", outcome),
		logging.Int("handles_closed", closed))
	if s.metrics != nil {
		s.metrics.RecordTransactionEnd(outcome, closed)
	}
	s.syncHandleGauge()
	return firstErr
}

func (s *Session) recordOpen(status string) {
	if s.metrics != nil {
		s.metrics.RecordOpen(status)
	}
}

func (s *Session) syncHandleGauge() {
	if s.metrics != nil {
		s.metrics.SetOpenHandles(s.table.Live())
	}
}
