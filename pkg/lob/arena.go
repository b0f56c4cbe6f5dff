package lob

import "context"

// Arena is the owning scope for every ObjectStream opened during one
// transaction. It is created lazily on the first handle-producing call and
// destroyed exactly once when the transaction ends; destruction closes every
// stream the arena still owns, including ones no longer reachable through
// the handle table.
type Arena struct {
	owned     map[ObjectStream]bool // value: stream already closed
	destroyed bool
}

func newArena() *Arena {
	return &Arena{owned: make(map[ObjectStream]bool)}
}

// open opens an existing object through store inside the arena's ownership
// scope. On success the returned stream is owned by the arena no matter how
// the caller's operation exits afterwards.
func (a *Arena) open(ctx context.Context, store ObjectStore, id ObjectID, mode int) (ObjectStream, error) {
	stream, err := store.Open(ctx, id, mode)
	if err != nil {
		return nil, err
	}
	a.owned[stream] = false
	return stream, nil
}

// create allocates a new object through store inside the arena's ownership
// scope.
func (a *Arena) create(ctx context.Context, store ObjectStore, mode int) (ObjectStream, ObjectID, error) {
	stream, id, err := store.Create(ctx, mode)
	if err != nil {
		return nil, InvalidObjectID, err
	}
	a.owned[stream] = false
	return stream, id, nil
}

// close closes an owned stream once. Later close calls for the same stream,
// and the close performed by destroy, are no-ops.
func (a *Arena) close(ctx context.Context, stream ObjectStream) error {
	closed, ok := a.owned[stream]
	if !ok || closed {
		return nil
	}
	a.owned[stream] = true
	return stream.Close(ctx)
}

// destroy closes every stream the arena still owns and invalidates the
// arena. It must be called at most once; the owning session drops its
// reference immediately afterwards.
func (a *Arena) destroy(ctx context.Context) error {
	if a.destroyed {
		return nil
	}
	a.destroyed = true

	var firstErr error
	for stream, closed := range a.owned {
		if closed {
			continue
		}
		if err := stream.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.owned = nil
	return firstErr
}
