// Package store provides the SQLite collection file that backs one local
// vector store. Each store directory holds a single collection.db containing
// the chunk text, its metadata and the raw embedding. Contents round-trip
// exactly across process restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// FileName is the name of the collection file inside a store directory.
const FileName = "collection.db"

// Record is one persisted chunk and its embedding.
type Record struct {
	// ID is the chunk identifier; upserting an existing ID overwrites it.
	ID string
	// DocumentID is the source document the chunk was cut from.
	DocumentID string
	// SequenceIndex is the chunk's position in its document.
	SequenceIndex int
	// TypeTag is the source document's type tag (e.g. ".pdf").
	TypeTag string
	// Content is the chunk text.
	Content string
	// Embedding is the vector computed at indexing time.
	Embedding []float32
}

// SQLiteStore is a single collection persisted in a SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the collection file at path, creating parent
// directories as needed, and runs the schema migration. ":memory:" opens an
// in-memory collection.
func Open(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory for %s: %w", path, err)
		}
		// WAL keeps readers from blocking the single writer.
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the file the collection was opened from.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    id             TEXT    PRIMARY KEY,
    document_id    TEXT    NOT NULL,
    sequence_index INTEGER NOT NULL,
    type_tag       TEXT    NOT NULL,
    content        TEXT    NOT NULL,
    embedding      BLOB    NOT NULL,
    updated_at     INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document
    ON chunks (document_id, sequence_index);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Upsert writes records in one transaction. Existing IDs are overwritten.
func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	const q = `
INSERT INTO chunks (id, document_id, sequence_index, type_tag, content, embedding, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    document_id    = excluded.document_id,
    sequence_index = excluded.sequence_index,
    type_tag       = excluded.type_tag,
    content        = excluded.content,
    embedding      = excluded.embedding,
    updated_at     = excluded.updated_at`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: upsert begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("store: upsert prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.DocumentID, r.SequenceIndex, r.TypeTag, r.Content, encodeVector(r.Embedding), now); err != nil {
			return fmt.Errorf("store: upsert %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: upsert commit: %w", err)
	}
	return nil
}

// All returns every record ordered by document and sequence index.
func (s *SQLiteStore) All(ctx context.Context) ([]Record, error) {
	const q = `
SELECT id, document_id, sequence_index, type_tag, content, embedding
FROM   chunks
ORDER  BY document_id ASC, sequence_index ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: all: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var blob []byte
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.SequenceIndex, &r.TypeTag, &r.Content, &blob); err != nil {
			return nil, fmt.Errorf("store: all scan: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("store: record %s: %w", r.ID, err)
		}
		r.Embedding = vec
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: all rows: %w", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// DropCollection removes the chunks table. The store is unusable afterwards
// except for Close.
func (s *SQLiteStore) DropCollection(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS chunks`); err != nil {
		return fmt.Errorf("store: drop collection: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
