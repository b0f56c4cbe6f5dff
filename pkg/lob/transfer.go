package lob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dd0wney/cluso-lobstore/pkg/logging"
	"github.com/dd0wney/cluso-lobstore/pkg/pools"
)

const (
	// TransferChunkSize is the unit of bulk import/export transfers.
	TransferChunkSize = 1024

	// MaxPathBytes bounds the length of local import/export paths. Longer
	// paths are rejected with ErrPathTooLong.
	MaxPathBytes = 8191
)

// exportFileMode combines with the lowered creation mask to yield
// rw-r--r-- on the exported file.
const exportFileMode = 0o666

// Import copies the file at sourcePath into a newly created object and
// returns the new object's id. The transfer is fail-fast: the first short
// write aborts the whole call with ErrPartialTransfer, and a partially
// written object is not dropped. Import is privileged; the session's
// Authorizer must allow "import".
func (s *Session) Import(ctx context.Context, sourcePath string) (ObjectID, error) {
	if err := s.authorize(ctx, "import"); err != nil {
		return InvalidObjectID, pathErr("lo_import", sourcePath, err)
	}
	if len(sourcePath) > MaxPathBytes {
		return InvalidObjectID, pathErr("lo_import", sourcePath[:64]+"...", ErrPathTooLong)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return InvalidObjectID, pathErr("lo_import", sourcePath, err)
	}
	defer src.Close()

	// Import streams are created and consumed outside the handle table and
	// the arena: the stream is closed before the call returns.
	stream, id, err := s.store.Create(ctx, ModeReadWrite)
	if err != nil {
		s.recordTransfer("import", 0, "error")
		return InvalidObjectID, pathErr("lo_import", sourcePath,
			fmt.Errorf("%w: %w", ErrBackingStore, err))
	}

	total, err := copyIn(ctx, stream, src)
	cerr := stream.Close(ctx)
	if err != nil {
		s.recordTransfer("import", total, "error")
		return InvalidObjectID, pathErr("lo_import", sourcePath, err)
	}
	if cerr != nil {
		s.recordTransfer("import", total, "error")
		return InvalidObjectID, pathErr("lo_import", sourcePath,
			fmt.Errorf("%w: %w", ErrBackingStore, cerr))
	}

	s.log.Info("lo_import", logging.String("path", sourcePath),
		logging.Uint64("oid", uint64(id)), logging.Int64("bytes", total))
	s.recordTransfer("import", total, "ok")
	return id, nil
}

// Export copies the object id byte-for-byte into destPath, creating or
// truncating it with permissions rw-r--r--. Like Import it is fail-fast and
// privileged, and a partially written destination file is left in place on
// failure.
func (s *Session) Export(ctx context.Context, id ObjectID, destPath string) error {
	if err := s.authorize(ctx, "export"); err != nil {
		return objectErr("lo_export", id, err)
	}
	if len(destPath) > MaxPathBytes {
		return pathErr("lo_export", destPath[:64]+"...", ErrPathTooLong)
	}

	// Export streams bypass the handle table and arena as well.
	stream, err := s.store.Open(ctx, id, ModeRead)
	if err != nil {
		s.recordTransfer("export", 0, "error")
		return objectErr("lo_export", id, fmt.Errorf("%w: %w", ErrBackingStore, err))
	}
	defer stream.Close(ctx)

	// The process creation mask is lowered for the create so the exported
	// file comes out owner-read-write, group-read, other-read, and restored
	// before anything else can run.
	restore := lowerUmask()
	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, exportFileMode)
	restore()
	if err != nil {
		s.recordTransfer("export", 0, "error")
		return pathErr("lo_export", destPath, err)
	}

	total, err := copyOut(ctx, dst, stream)
	cerr := dst.Close()
	if err != nil {
		s.recordTransfer("export", total, "error")
		return pathErr("lo_export", destPath, err)
	}
	if cerr != nil {
		s.recordTransfer("export", total, "error")
		return pathErr("lo_export", destPath, cerr)
	}

	s.log.Info("lo_export", logging.Uint64("oid", uint64(id)),
		logging.String("path", destPath), logging.Int64("bytes", total))
	s.recordTransfer("export", total, "ok")
	return nil
}

// copyIn drains src into stream in TransferChunkSize units. A write that
// accepts fewer bytes than offered signals a backing-store fault and aborts
// with ErrPartialTransfer.
func copyIn(ctx context.Context, stream ObjectStream, src io.Reader) (int64, error) {
	chunk := pools.GetChunk()
	defer pools.PutChunk(chunk)

	var total int64
	for {
		n, rerr := src.Read(chunk)
		if n > 0 {
			w, werr := stream.Write(ctx, chunk[:n])
			if werr != nil {
				return total, fmt.Errorf("%w: %w", ErrBackingStore, werr)
			}
			if w < n {
				return total, fmt.Errorf("%w: wrote %d of %d bytes", ErrPartialTransfer, w, n)
			}
			total += int64(w)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return total, nil
			}
			return total, rerr
		}
		if n == 0 {
			// Zero-byte read without an error: the source is exhausted.
			return total, nil
		}
	}
}

// copyOut drains stream into dst in TransferChunkSize units, aborting on
// the first short destination write.
func copyOut(ctx context.Context, dst io.Writer, stream ObjectStream) (int64, error) {
	chunk := pools.GetChunk()
	defer pools.PutChunk(chunk)

	var total int64
	for {
		n, rerr := stream.Read(ctx, chunk)
		if n > 0 {
			w, werr := dst.Write(chunk[:n])
			if werr != nil {
				return total, werr
			}
			if w < n {
				return total, fmt.Errorf("%w: wrote %d of %d bytes", ErrPartialTransfer, w, n)
			}
			total += int64(w)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return total, nil
			}
			return total, fmt.Errorf("%w: %w", ErrBackingStore, rerr)
		}
		if n == 0 {
			return total, nil
		}
	}
}

// authorize applies the privilege gate for import/export. A session without
// an Authorizer denies both.
func (s *Session) authorize(ctx context.Context, op string) error {
	if s.gate == nil {
		return fmt.Errorf("%w: no authorizer configured for %s", ErrPermissionDenied, op)
	}
	return s.gate.Authorize(ctx, op)
}

func (s *Session) recordTransfer(direction string, bytes int64, status string) {
	if s.metrics != nil {
		s.metrics.RecordTransfer(direction, bytes, status)
	}
}
