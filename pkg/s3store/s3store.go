// Package s3store provides an S3-backed object store for the large-object
// runtime. Object-store streams must be seekable, which S3 bodies are not,
// so each open spools the object into a local temp file; written streams
// are uploaded again when they close.
package s3store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/dd0wney/cluso-lobstore/pkg/lob"
)

// ErrUnknownObject is returned for ids with no S3 object behind them.
var ErrUnknownObject = errors.New("unknown object")

// Client is the slice of the S3 API the store uses.
type Client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store is an S3 lob.ObjectStore.
type Store struct {
	client   Client
	bucket   string
	prefix   string
	spoolDir string
}

// New builds a store over bucket using ambient AWS credentials. Spool
// files go under spoolDir; empty means the system temp directory.
func New(ctx context.Context, bucket, spoolDir string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	if spoolDir == "" {
		spoolDir = os.TempDir()
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket, spoolDir), nil
}

// NewWithClient builds a store over an explicit client; spool files go
// under spoolDir.
func NewWithClient(client Client, bucket, spoolDir string) *Store {
	return &Store{client: client, bucket: bucket, prefix: "lob/", spoolDir: spoolDir}
}

func (s *Store) key(id lob.ObjectID) string {
	return s.prefix + strconv.FormatUint(uint64(id), 10)
}

// newID derives a fresh object id from random UUID bytes. Ids are only
// unique, never sequential; nothing in the runtime assumes ordering.
func newID() lob.ObjectID {
	u := uuid.New()
	id := lob.ObjectID(binary.BigEndian.Uint64(u[:8]))
	if id == lob.InvalidObjectID {
		id = 1
	}
	return id
}

func (s *Store) spool(prefix string) (*os.File, error) {
	return os.CreateTemp(s.spoolDir, "lobspool-"+prefix+"-*")
}

// Open implements lob.ObjectStore: the S3 object is downloaded into a
// spool file and the stream operates on that.
func (s *Store) Open(ctx context.Context, id lob.ObjectID, mode int) (lob.ObjectStream, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownObject, id)
		}
		return nil, fmt.Errorf("fetching object %d: %w", id, err)
	}
	defer out.Body.Close()

	f, err := s.spool(strconv.FormatUint(uint64(id), 10))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("spooling object %d: %w", id, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &stream{store: s, id: id, mode: mode, f: f}, nil
}

// Create implements lob.ObjectStore. The object is materialized in S3 when
// the stream closes.
func (s *Store) Create(ctx context.Context, mode int) (lob.ObjectStream, lob.ObjectID, error) {
	id := newID()
	f, err := s.spool(strconv.FormatUint(uint64(id), 10))
	if err != nil {
		return nil, lob.InvalidObjectID, err
	}
	// An empty upload reserves the key so a later Open finds the object
	// even if nothing is written.
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, lob.InvalidObjectID, fmt.Errorf("reserving object: %w", err)
	}
	return &stream{store: s, id: id, mode: mode, f: f, dirty: false}, id, nil
}

// Drop implements lob.ObjectStore.
func (s *Store) Drop(ctx context.Context, id lob.ObjectID) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w: %d", ErrUnknownObject, id)
		}
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	return err
}

type stream struct {
	store *Store
	id    lob.ObjectID
	mode  int
	f     *os.File
	pos   int64
	dirty bool
}

func (st *stream) Read(_ context.Context, p []byte) (int, error) {
	if !lob.IsReadAllowed(st.mode) {
		return 0, lob.ErrModeNotPermitted
	}
	n, err := st.f.ReadAt(p, st.pos)
	st.pos += int64(n)
	return n, err
}

func (st *stream) Write(_ context.Context, p []byte) (int, error) {
	if !lob.IsWriteAllowed(st.mode) {
		return 0, lob.ErrModeNotPermitted
	}
	n, err := st.f.WriteAt(p, st.pos)
	st.pos += int64(n)
	if n > 0 {
		st.dirty = true
	}
	return n, err
}

func (st *stream) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = st.pos
	case io.SeekEnd:
		info, err := st.f.Stat()
		if err != nil {
			return 0, err
		}
		base = info.Size()
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
	return st.pos, nil
}

// Close uploads the spool file when it was written, then discards it.
func (st *stream) Close(ctx context.Context) error {
	defer func() {
		st.f.Close()
		os.Remove(st.f.Name())
	}()

	if !st.dirty {
		return nil
	}
	if _, err := st.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := st.store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(st.store.bucket),
		Key:    aws.String(st.store.key(st.id)),
		Body:   st.f,
	})
	if err != nil {
		return fmt.Errorf("uploading object %d: %w", st.id, err)
	}
	return nil
}

// CleanupIndex is a no-op: the upload happens at close, and no index state
// outlives the stream.
func (st *stream) CleanupIndex(_ context.Context) error {
	return nil
}
