// Package store persists memory records on a category-partitioned file
// layout: one markdown file per record with a YAML front matter header,
// grouped into one directory per category.
//
// Readers scanning a category never take global coordination; writers
// serialize only within a (category, identifier) pair, so contention is
// proportional to the write hotspot, not the store size. The public Put
// carries optimistic versioning: a writer who read a stale revision gets
// a ConflictError instead of silently clobbering a concurrent update.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cogents/memu-go/core"
)

// Config configures a Store.
type Config struct {
	// Dir is the root directory. Category subdirectories are created on
	// first write.
	Dir string

	// Now is the clock. Defaults to time.Now; injectable for tests.
	Now func() time.Time
}

// Store is the durable mapping from (category, identifier) to record.
// It is the single source of truth: the similarity index is a derived
// cache and is always rebuildable from here.
type Store struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Store rooted at cfg.Dir.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("store dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{
		dir:    cfg.Dir,
		now:    now,
		logger: logger.With(zap.String("component", "store")),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex serializing writes to one (category, id).
func (s *Store) lockFor(category core.Category, id string) *sync.Mutex {
	key := string(category) + "/" + id
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *Store) recordPath(category core.Category, id string) string {
	return filepath.Join(s.dir, string(category), id+".md")
}

// Put creates the record if absent, otherwise replaces its whole body.
// baseRevision is the revision the caller last read (zero when creating).
// A mismatch means a concurrent writer got there first and Put fails with
// a ConflictError; the caller re-reads and decides.
//
// A body change always clears the stored embedding association: the
// record returns with a nil embedding and the index re-repairs lazily.
func (s *Store) Put(ctx context.Context, category core.Category, id, body string, baseRevision uint64, sourceRef string) (*core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, fmt.Errorf("invalid category %q", category)
	}
	if id == "" {
		return nil, fmt.Errorf("record id is required")
	}

	l := s.lockFor(category, id)
	l.Lock()
	defer l.Unlock()

	existing, err := s.read(category, id)
	if err != nil && !core.IsNotFound(err) {
		return nil, err
	}

	now := s.now()
	var rec *core.Record
	switch {
	case existing == nil:
		if baseRevision != 0 {
			return nil, &core.ConflictError{Category: category, ID: id, Expected: baseRevision, Actual: 0}
		}
		rec = &core.Record{
			ID:        id,
			Category:  category,
			Body:      body,
			CreatedAt: now,
			UpdatedAt: now,
			Revision:  1,
			SourceRef: sourceRef,
		}
	default:
		if existing.Revision != baseRevision {
			return nil, &core.ConflictError{
				Category: category, ID: id,
				Expected: baseRevision, Actual: existing.Revision,
			}
		}
		rec = existing
		rec.Body = body
		rec.Revision++
		rec.UpdatedAt = now
		rec.Tombstone = false
		rec.Embedding = nil
		if sourceRef != "" {
			rec.SourceRef = sourceRef
		}
	}

	if err := s.write(rec); err != nil {
		return nil, err
	}
	s.logger.Debug("record written",
		zap.String("category", string(category)),
		zap.String("id", id),
		zap.Uint64("revision", rec.Revision))
	return rec.Clone(), nil
}

// Get returns the record, tombstoned or not. A tombstone is still a
// record: readers holding stale identifiers resolve it instead of
// getting a NotFoundError.
func (s *Store) Get(ctx context.Context, category core.Category, id string) (*core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.read(category, id)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// AppendSection merges text into the named section of the record body.
// If the section already exists its content is replaced, which makes the
// operation idempotent. The revision advances and the embedding is
// invalidated like any other body change.
func (s *Store) AppendSection(ctx context.Context, category core.Category, id, section, text string) (*core.Record, error) {
	return s.mutate(ctx, category, id, func(rec *core.Record) error {
		if rec.Tombstone {
			return &core.NotFoundError{Category: category, ID: id}
		}
		parsed := core.ParseSections(rec.Body)
		parsed.Set(section, text)
		rec.Body = parsed.Render()
		return nil
	})
}

// List enumerates every record in a category in identifier order. The
// listing is finite and restartable: calling it again after a mutation
// reflects the new state. It is not a live view.
func (s *Store) List(ctx context.Context, category core.Category) ([]*core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.dir, string(category))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read category dir: %w", err)
	}

	var out []*core.Record
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		rec, err := s.read(category, strings.TrimSuffix(name, ".md"))
		if err != nil {
			s.logger.Warn("skipping unreadable record",
				zap.String("category", string(category)),
				zap.String("file", name),
				zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Tombstone soft-deletes a record: body cleared, outgoing links severed,
// identifier retained. It also removes the record as a link target of
// every other record in the category. Idempotent.
func (s *Store) Tombstone(ctx context.Context, category core.Category, id string) error {
	_, err := s.mutate(ctx, category, id, func(rec *core.Record) error {
		rec.Body = ""
		rec.Links = nil
		rec.Tombstone = true
		return nil
	})
	if err != nil {
		return err
	}

	// Sever incoming links. Link edges stay within one category, so the
	// scan is category-local.
	others, err := s.List(ctx, category)
	if err != nil {
		return err
	}
	for _, other := range others {
		if other.ID == id || !other.HasLink(id) {
			continue
		}
		_, err := s.mutate(ctx, category, other.ID, func(rec *core.Record) error {
			kept := rec.Links[:0]
			for _, l := range rec.Links {
				if l != id {
					kept = append(kept, l)
				}
			}
			rec.Links = kept
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// AddLink records a directed edge from (category, id) to target.
// Adding an existing edge is a no-op and does not advance the revision.
func (s *Store) AddLink(ctx context.Context, category core.Category, id, target string) (*core.Record, error) {
	return s.mutate(ctx, category, id, func(rec *core.Record) error {
		if rec.HasLink(target) {
			return errSkipWrite
		}
		rec.Links = append(rec.Links, target)
		return nil
	})
}

// FindByBodyHash scans a category for a live record whose body hash
// matches exactly. Used by Add for duplicate detection.
func (s *Store) FindByBodyHash(ctx context.Context, category core.Category, hash string) (*core.Record, bool, error) {
	records, err := s.List(ctx, category)
	if err != nil {
		return nil, false, err
	}
	for _, rec := range records {
		if rec.Tombstone {
			continue
		}
		if rec.BodyHash() == hash {
			return rec, true, nil
		}
	}
	return nil, false, nil
}

// errSkipWrite is returned by a mutate callback to commit nothing.
var errSkipWrite = fmt.Errorf("skip write")

// mutate runs a read-modify-write cycle under the per-record lock. The
// revision and modification timestamp advance automatically; a body
// change implies embedding invalidation because the on-disk form never
// stores the vector.
func (s *Store) mutate(ctx context.Context, category core.Category, id string, fn func(*core.Record) error) (*core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := s.lockFor(category, id)
	l.Lock()
	defer l.Unlock()

	rec, err := s.read(category, id)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		if err == errSkipWrite {
			return rec.Clone(), nil
		}
		return nil, err
	}
	rec.Revision++
	rec.UpdatedAt = s.now()
	rec.Embedding = nil
	if err := s.write(rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

func (s *Store) read(category core.Category, id string) (*core.Record, error) {
	data, err := os.ReadFile(s.recordPath(category, id))
	if os.IsNotExist(err) {
		return nil, &core.NotFoundError{Category: category, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return decodeRecord(data)
}

// write lands the record atomically: temp file in the same directory,
// then rename, so a concurrent reader never observes a partial file.
func (s *Store) write(rec *core.Record) error {
	dir := filepath.Join(s.dir, string(rec.Category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create category dir: %w", err)
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+rec.ID+"-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close record: %w", err)
	}
	if err := os.Rename(tmpName, s.recordPath(rec.Category, rec.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}
