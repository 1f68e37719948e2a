// Package index maintains the per-category similarity index over record
// embeddings, backed by chromem-go (an embedded, pure-Go vector
// database).
//
// The index is a derived cache: the store is the source of truth and the
// index is always rebuildable from it, so index corruption is never a
// durability incident. Staleness is healed by read-repair: a record the
// store knows at a newer revision than the index gets re-embedded and
// upserted on the next query that touches its category.
package index

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cogents/memu-go/core"
	"github.com/cogents/memu-go/embed"
	"github.com/cogents/memu-go/store"
)

// Match is one similarity hit: cosine score descending, ties broken by
// more recent modification first.
type Match struct {
	ID        string
	Score     float32
	UpdatedAt time.Time
}

// entry tracks what the index currently holds for a record.
type entry struct {
	revision  uint64
	updatedAt time.Time
}

// Index holds one chromem collection per category.
type Index struct {
	store    *store.Store
	embedder embed.Embedder
	logger   *zap.Logger

	db          *chromem.DB
	mu          sync.RWMutex
	collections map[core.Category]*chromem.Collection
	indexed     map[core.Category]map[string]entry

	repairs singleflight.Group
}

// New creates an empty index over the given store and embedder. Vectors
// are computed lazily, so construction is cheap even for a large store.
func New(st *store.Store, embedder embed.Embedder, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		store:       st,
		embedder:    embedder,
		logger:      logger.With(zap.String("component", "similarity_index")),
		db:          chromem.NewDB(),
		collections: make(map[core.Category]*chromem.Collection),
		indexed:     make(map[core.Category]map[string]entry),
	}
}

func (ix *Index) collection(category core.Category) (*chromem.Collection, error) {
	ix.mu.RLock()
	col, ok := ix.collections[category]
	ix.mu.RUnlock()
	if ok {
		return col, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if col, ok := ix.collections[category]; ok {
		return col, nil
	}
	col, err := ix.db.CreateCollection("memories_"+string(category), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	ix.collections[category] = col
	ix.indexed[category] = make(map[string]entry)
	return col, nil
}

// Upsert stores or replaces the vector for a record.
func (ix *Index) Upsert(ctx context.Context, rec *core.Record, vector []float32) error {
	col, err := ix.collection(rec.Category)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Body,
		Embedding: vector,
		Metadata: map[string]string{
			"updated_at": rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
			"revision":   strconv.FormatUint(rec.Revision, 10),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	ix.mu.Lock()
	ix.indexed[rec.Category][rec.ID] = entry{revision: rec.Revision, updatedAt: rec.UpdatedAt}
	ix.mu.Unlock()
	return nil
}

// Remove drops a record's vector, if present. Actions call this
// synchronously for every identifier they touch, so the next query
// re-repairs from the store instead of serving a stale vector.
func (ix *Index) Remove(ctx context.Context, category core.Category, id string) error {
	ix.mu.RLock()
	col, ok := ix.collections[category]
	ix.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	ix.mu.Lock()
	delete(ix.indexed[category], id)
	ix.mu.Unlock()
	return nil
}

// Query returns up to k records of the category ranked by cosine
// similarity against the query vector. Stale or missing vectors are
// read-repaired first.
func (ix *Index) Query(ctx context.Context, vector []float32, k int, category core.Category) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := ix.Repair(ctx, category); err != nil {
		return nil, err
	}

	col, err := ix.collection(category)
	if err != nil {
		return nil, err
	}

	// chromem refuses nResults above the collection size.
	if n := col.Count(); n < k {
		k = n
	}
	if k == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		updatedAt, _ := time.Parse(time.RFC3339Nano, res.Metadata["updated_at"])
		matches = append(matches, Match{ID: res.ID, Score: res.Similarity, UpdatedAt: updatedAt})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
	})
	return matches, nil
}

// Repair brings one category's vectors up to date with the store:
// missing or revision-stale entries are re-embedded, tombstones and
// vanished records are dropped. Concurrent repairs of the same record
// revision collapse into one embedding call.
func (ix *Index) Repair(ctx context.Context, category core.Category) error {
	records, err := ix.store.List(ctx, category)
	if err != nil {
		return err
	}

	live := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.Tombstone {
			continue
		}
		live[rec.ID] = true

		ix.mu.RLock()
		current, ok := ix.indexed[category][rec.ID]
		ix.mu.RUnlock()
		if ok && current.revision == rec.Revision {
			continue
		}

		if err := ix.repairOne(ctx, rec); err != nil {
			return err
		}
	}

	// Drop entries whose records are gone or tombstoned.
	ix.mu.RLock()
	var stale []string
	for id := range ix.indexed[category] {
		if !live[id] {
			stale = append(stale, id)
		}
	}
	ix.mu.RUnlock()
	for _, id := range stale {
		if err := ix.Remove(ctx, category, id); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Index) repairOne(ctx context.Context, rec *core.Record) error {
	key := fmt.Sprintf("%s/%s@%d", rec.Category, rec.ID, rec.Revision)
	_, err, _ := ix.repairs.Do(key, func() (interface{}, error) {
		vector, err := ix.embedder.Embed(ctx, rec.Body)
		if err != nil {
			return nil, err
		}
		return nil, ix.Upsert(ctx, rec, vector)
	})
	if err != nil {
		return fmt.Errorf("repair %s/%s: %w", rec.Category, rec.ID, err)
	}
	return nil
}

// RebuildInBackground launches a detached repair pass over every
// category. It is cancellable through the returned function and its
// failure never blocks a foreground query: an error just leaves those
// vectors stale until the next access repairs them.
func (ix *Index) RebuildInBackground(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		for _, category := range core.Categories() {
			if ctx.Err() != nil {
				return
			}
			if err := ix.Repair(ctx, category); err != nil {
				ix.logger.Warn("background rebuild failed",
					zap.String("category", string(category)),
					zap.Error(err))
			}
		}
	}()
	return cancel
}
