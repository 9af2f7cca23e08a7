package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/54b3r/docrag-go/internal/store"
)

// LocalStore keeps each store in its own directory under a data root:
// {dir}/{id}/collection.db. Open collections are shared between callers and
// reference counted; a store cannot be deleted while any handle is held.
type LocalStore struct {
	dir string
	log *slog.Logger

	mu   sync.Mutex
	open map[string]*sharedCollection
}

// sharedCollection is the single open database for a store id.
type sharedCollection struct {
	db   *store.SQLiteStore
	refs int
}

// NewLocalStore returns a LocalStore rooted at dir. The directory is created
// lazily on first write.
func NewLocalStore(dir string, log *slog.Logger) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("rag: local store directory must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &LocalStore{
		dir:  dir,
		log:  log,
		open: make(map[string]*sharedCollection),
	}, nil
}

// Path returns the directory backing store id.
func (s *LocalStore) Path(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *LocalStore) dbPath(id string) string {
	return filepath.Join(s.dir, id, store.FileName)
}

// GetOrCreate opens (creating if needed) the collection for id.
func (s *LocalStore) GetOrCreate(_ context.Context, id string) (Collection, error) {
	if err := ValidateStoreID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.open[id]
	if !ok {
		db, err := store.Open(s.dbPath(id))
		if err != nil {
			return nil, fmt.Errorf("rag: open local store %s: %w", id, err)
		}
		sc = &sharedCollection{db: db}
		s.open[id] = sc
	}
	sc.refs++
	return &localCollection{owner: s, id: id, db: sc.db}, nil
}

// Exists reports whether the collection file for id is on disk.
func (s *LocalStore) Exists(_ context.Context, id string) (bool, error) {
	if err := ValidateStoreID(id); err != nil {
		return false, err
	}
	_, err := os.Stat(s.dbPath(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("rag: stat local store %s: %w", id, err)
}

// Query searches id without creating it; a missing store yields no matches.
func (s *LocalStore) Query(ctx context.Context, id string, vector []float32, topK int) ([]Match, error) {
	c, err := s.openExisting(id)
	if err != nil || c == nil {
		return nil, err
	}
	defer func() { _ = c.Release() }()
	return c.Query(ctx, vector, topK)
}

// openExisting takes a handle on id only if its collection file is on disk.
// The check and the reference are taken under one lock so a concurrent
// Delete cannot slip in between them. A missing store returns a nil handle.
func (s *LocalStore) openExisting(id string) (Collection, error) {
	if err := ValidateStoreID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.open[id]
	if !ok {
		if _, err := os.Stat(s.dbPath(id)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("rag: stat local store %s: %w", id, err)
		}
		db, err := store.Open(s.dbPath(id))
		if err != nil {
			return nil, fmt.Errorf("rag: open local store %s: %w", id, err)
		}
		sc = &sharedCollection{db: db}
		s.open[id] = sc
	}
	sc.refs++
	return &localCollection{owner: s, id: id, db: sc.db}, nil
}

// Delete drops the chunks table and removes the store directory. It returns
// false while any handle on id is open or when removal fails.
func (s *LocalStore) Delete(ctx context.Context, id string) bool {
	log := s.log.With(slog.String("store_id", id))
	if err := ValidateStoreID(id); err != nil {
		log.Warn("rag: refusing to delete invalid store id", slog.String("error", err.Error()))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sc, ok := s.open[id]; ok && sc.refs > 0 {
		log.Info("rag: store busy, deletion not possible yet", slog.Int("open_handles", sc.refs))
		return false
	}

	dir := s.Path(id)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return true
	}

	if _, err := os.Stat(s.dbPath(id)); err == nil {
		db, err := store.Open(s.dbPath(id))
		if err != nil {
			log.Warn("rag: open store for drop failed", slog.String("error", err.Error()))
			return false
		}
		dropErr := db.DropCollection(ctx)
		closeErr := db.Close()
		if err := errors.Join(dropErr, closeErr); err != nil {
			log.Warn("rag: drop collection failed", slog.String("error", err.Error()))
			return false
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		log.Warn("rag: remove store directory failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// OpenHandles returns the number of live handles on id.
func (s *LocalStore) OpenHandles(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.open[id]; ok {
		return sc.refs
	}
	return 0
}

// Close closes every open collection regardless of outstanding handles.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for id, sc := range s.open {
		if err := sc.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("rag: close %s: %w", id, err))
		}
		delete(s.open, id)
	}
	return errors.Join(errs...)
}

// release drops one reference on id and closes the database at zero.
func (s *LocalStore) release(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.open[id]
	if !ok {
		return nil
	}
	sc.refs--
	if sc.refs > 0 {
		return nil
	}
	delete(s.open, id)
	return sc.db.Close()
}

// localCollection is one caller's handle on a shared collection.
type localCollection struct {
	owner *LocalStore
	id    string
	db    *store.SQLiteStore
	once  sync.Once
}

func (c *localCollection) ID() string { return c.id }

func (c *localCollection) Upsert(ctx context.Context, entries []Entry) error {
	records := make([]store.Record, len(entries))
	for i, e := range entries {
		records[i] = store.Record{
			ID:            e.ID,
			DocumentID:    e.Metadata.DocumentID,
			SequenceIndex: e.Metadata.SequenceIndex,
			TypeTag:       e.Metadata.TypeTag,
			Content:       e.Content,
			Embedding:     e.Embedding,
		}
	}
	if err := c.db.Upsert(ctx, records); err != nil {
		return fmt.Errorf("rag: upsert into %s: %w", c.id, err)
	}
	return nil
}

// Query does an exhaustive cosine scan over the collection.
func (c *localCollection) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	records, err := c.db.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: query %s: %w", c.id, err)
	}
	entries := make([]Entry, len(records))
	for i, r := range records {
		entries[i] = Entry{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: r.Embedding,
			Metadata: Metadata{
				TypeTag:       r.TypeTag,
				SequenceIndex: r.SequenceIndex,
				DocumentID:    r.DocumentID,
			},
		}
	}
	return Rank(entries, vector, topK)
}

func (c *localCollection) Count(ctx context.Context) (int, error) {
	n, err := c.db.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("rag: count %s: %w", c.id, err)
	}
	return n, nil
}

func (c *localCollection) Release() error {
	var err error
	c.once.Do(func() { err = c.owner.release(c.id) })
	return err
}
