// Package pgstore provides a PostgreSQL-backed object store for the
// large-object runtime. Object content is held in fixed-size pages, one row
// per page, so reads and writes touch only the pages they cover.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/cluso-lobstore/pkg/lob"
)

// ErrUnknownObject is returned for ids with no lob_object row.
var ErrUnknownObject = errors.New("unknown object")

// PageSize is the number of content bytes per page row.
const PageSize = 2048

// Store is a PostgreSQL lob.ObjectStore.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL, verifies connectivity and creates the
// object/page tables if they do not exist.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS lob_object (
			loid BIGINT PRIMARY KEY GENERATED BY DEFAULT AS IDENTITY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS lob_page (
			loid   BIGINT NOT NULL REFERENCES lob_object(loid) ON DELETE CASCADE,
			pageno INT    NOT NULL,
			data   BYTEA  NOT NULL,
			PRIMARY KEY (loid, pageno)
		);
	`)
	return err
}

// Open implements lob.ObjectStore.
func (s *Store) Open(ctx context.Context, id lob.ObjectID, mode int) (lob.ObjectStream, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM lob_object WHERE loid = $1)`, int64(id)).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	return &stream{store: s, id: id, mode: mode}, nil
}

// Create implements lob.ObjectStore.
func (s *Store) Create(ctx context.Context, mode int) (lob.ObjectStream, lob.ObjectID, error) {
	var loid int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO lob_object DEFAULT VALUES RETURNING loid`).Scan(&loid)
	if err != nil {
		return nil, lob.InvalidObjectID, err
	}
	id := lob.ObjectID(loid)
	return &stream{store: s, id: id, mode: mode}, id, nil
}

// Drop implements lob.ObjectStore. Pages go with the object via cascade.
func (s *Store) Drop(ctx context.Context, id lob.ObjectID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lob_object WHERE loid = $1`, int64(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	return nil
}

type stream struct {
	store *Store
	id    lob.ObjectID
	mode  int
	pos   int64
}

// size returns the object's current length in bytes.
func (st *stream) size(ctx context.Context) (int64, error) {
	var pageno int
	var lastLen int
	err := st.store.pool.QueryRow(ctx, `
		SELECT pageno, octet_length(data)
		FROM lob_page WHERE loid = $1
		ORDER BY pageno DESC LIMIT 1`, int64(st.id)).Scan(&pageno, &lastLen)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(pageno)*PageSize + int64(lastLen), nil
}

func (st *stream) Read(ctx context.Context, p []byte) (int, error) {
	if !lob.IsReadAllowed(st.mode) {
		return 0, lob.ErrModeNotPermitted
	}
	if len(p) == 0 {
		return 0, nil
	}

	size, err := st.size(ctx)
	if err != nil {
		return 0, err
	}
	if st.pos >= size {
		return 0, io.EOF
	}

	avail := size - st.pos
	if avail > int64(len(p)) {
		avail = int64(len(p))
	}
	// Pages never written (holes behind a seek-past-end write) read as
	// zeros.
	buf := p[:avail]
	for i := range buf {
		buf[i] = 0
	}

	firstPage := int(st.pos / PageSize)
	lastPage := int((st.pos + avail - 1) / PageSize)

	rows, err := st.store.pool.Query(ctx, `
		SELECT pageno, data FROM lob_page
		WHERE loid = $1 AND pageno BETWEEN $2 AND $3
		ORDER BY pageno`, int64(st.id), firstPage, lastPage)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var pageno int
		var data []byte
		if err := rows.Scan(&pageno, &data); err != nil {
			return 0, err
		}

		pageStart := int64(pageno) * PageSize
		from := st.pos - pageStart // page-relative start of the read
		var dst int64              // buffer offset this page lands at
		if from < 0 {
			dst = -from
			from = 0
		}
		if from >= int64(len(data)) || dst >= avail {
			continue
		}
		copy(buf[dst:], data[from:])
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	st.pos += avail
	return int(avail), nil
}

func (st *stream) Write(ctx context.Context, p []byte) (int, error) {
	if !lob.IsWriteAllowed(st.mode) {
		return 0, lob.ErrModeNotPermitted
	}
	if len(p) == 0 {
		return 0, nil
	}

	tx, err := st.store.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	written := 0
	pos := st.pos
	for written < len(p) {
		pageno := int(pos / PageSize)
		pageOff := int(pos % PageSize)
		n := PageSize - pageOff
		if n > len(p)-written {
			n = len(p) - written
		}

		var existing []byte
		err := tx.QueryRow(ctx,
			`SELECT data FROM lob_page WHERE loid = $1 AND pageno = $2`,
			int64(st.id), pageno).Scan(&existing)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return written, err
		}

		page := existing
		if need := pageOff + n; len(page) < need {
			grown := make([]byte, need)
			copy(grown, page)
			page = grown
		}
		copy(page[pageOff:], p[written:written+n])

		_, err = tx.Exec(ctx, `
			INSERT INTO lob_page (loid, pageno, data) VALUES ($1, $2, $3)
			ON CONFLICT (loid, pageno) DO UPDATE SET data = EXCLUDED.data`,
			int64(st.id), pageno, page)
		if err != nil {
			return written, err
		}

		written += n
		pos += int64(n)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	st.pos = pos
	return written, nil
}

func (st *stream) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = st.pos
	case io.SeekEnd:
		end, err := st.size(context.Background())
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
	st.pos = pos
	return pos, nil
}

func (st *stream) Tell() (int64, error) {
	return st.pos, nil
}

func (st *stream) Close(_ context.Context) error {
	return nil
}

// CleanupIndex has nothing to release: pages are written through, so no
// per-stream index state survives to commit time.
func (st *stream) CleanupIndex(_ context.Context) error {
	return nil
}
