package lob

import "context"

// ObjectID identifies one large object in the backing store.
type ObjectID uint64

// InvalidObjectID is never assigned to a stored object.
const InvalidObjectID ObjectID = 0

// Open modes. The values match the historical inversion-API wire values so
// that ids and modes in stored configs stay recognizable.
const (
	ModeRead      = 0x20000
	ModeWrite     = 0x40000
	ModeReadWrite = ModeRead | ModeWrite
)

// IsReadAllowed reports whether mode permits reads.
func IsReadAllowed(mode int) bool {
	return mode&ModeRead != 0
}

// IsWriteAllowed reports whether mode permits writes.
func IsWriteAllowed(mode int) bool {
	return mode&ModeWrite != 0
}

// ObjectStream is an open byte stream over one stored object, positioned at
// a seekable offset. Implementations are not safe for concurrent use; a
// stream belongs to exactly one transaction.
//
// Read returns io.EOF (with n == 0) once the object is exhausted. Seek uses
// the io.SeekStart/io.SeekCurrent/io.SeekEnd whence values.
type ObjectStream interface {
	Read(ctx context.Context, p []byte) (int, error)
	Write(ctx context.Context, p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Tell() (int64, error)
	Close(ctx context.Context) error

	// CleanupIndex releases commit-time index state held by the stream.
	// It is only called when the surrounding transaction commits; after an
	// abort the stream's backing relation may no longer exist, so
	// implementations may assume a valid object when invoked.
	CleanupIndex(ctx context.Context) error
}

// ObjectStore is the backing object-storage engine. Durability, chunked
// persistence and index maintenance all live behind this interface.
type ObjectStore interface {
	// Open returns a stream over an existing object, or an error if the id
	// is unknown or the mode is rejected.
	Open(ctx context.Context, id ObjectID, mode int) (ObjectStream, error)

	// Create allocates a new object and returns a stream over it together
	// with the new object's id.
	Create(ctx context.Context, mode int) (ObjectStream, ObjectID, error)

	// Drop removes an object. Streams already open on it are not hunted
	// down; they keep operating until closed or the transaction ends.
	Drop(ctx context.Context, id ObjectID) error
}
