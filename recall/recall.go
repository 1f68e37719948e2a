// Package recall retrieves stored memories relevant to a free-text
// query: embed the query, rank candidates by cosine similarity per
// category, merge, and optionally pull in directly linked records.
package recall

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/cogents/memu-go/core"
	"github.com/cogents/memu-go/embed"
	"github.com/cogents/memu-go/index"
	"github.com/cogents/memu-go/store"
)

// Excerpt is one recalled memory. Linked marks records that did not
// match the query themselves but are linked from one that did; they
// always rank below direct matches.
type Excerpt struct {
	Record *core.Record
	Score  float32
	Linked bool
}

// Recaller answers similarity queries over the memory store.
type Recaller struct {
	store    *store.Store
	index    *index.Index
	embedder embed.Embedder
	logger   *zap.Logger
}

// New wires a recaller over an existing store and index. The embedder
// must be the same one the index uses, or scores are meaningless.
func New(st *store.Store, ix *index.Index, embedder embed.Embedder, logger *zap.Logger) *Recaller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recaller{
		store:    st,
		index:    ix,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "recall")),
	}
}

// Recall returns up to k excerpts for the query, best first. An empty
// category searches every category and merges the results. With
// expandLinks, records linked from a direct match are appended after
// all direct matches, deduplicated, without growing past k.
//
// Results are deterministic for a fixed store and embedder: ties in
// score fall back to recency, then identifier.
func (r *Recaller) Recall(ctx context.Context, query string, category core.Category, k int, expandLinks bool) ([]Excerpt, error) {
	if k <= 0 {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	categories := core.Categories()
	if category != "" {
		parsed, err := core.ParseCategory(string(category))
		if err != nil {
			return nil, err
		}
		categories = []core.Category{parsed}
	}

	var direct []Excerpt
	for _, cat := range categories {
		matches, err := r.index.Query(ctx, vector, k, cat)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if m.Score <= 0 {
				continue
			}
			rec, err := r.store.Get(ctx, cat, m.ID)
			if err != nil {
				// The index can briefly trail the store; a missing
				// record is not a recall failure.
				if core.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			if rec.Tombstone {
				continue
			}
			direct = append(direct, Excerpt{Record: rec, Score: m.Score})
		}
	}

	sort.SliceStable(direct, func(i, j int) bool {
		if direct[i].Score != direct[j].Score {
			return direct[i].Score > direct[j].Score
		}
		if !direct[i].Record.UpdatedAt.Equal(direct[j].Record.UpdatedAt) {
			return direct[i].Record.UpdatedAt.After(direct[j].Record.UpdatedAt)
		}
		return direct[i].Record.ID < direct[j].Record.ID
	})
	if len(direct) > k {
		direct = direct[:k]
	}

	out := direct
	if expandLinks {
		out = r.expand(ctx, direct, k)
	}

	r.logger.Debug("recall complete",
		zap.String("query", query),
		zap.Int("results", len(out)))
	return out, nil
}

// expand appends one hop of linked records after the direct matches.
// Linked excerpts carry the score of the match that referenced them.
func (r *Recaller) expand(ctx context.Context, direct []Excerpt, k int) []Excerpt {
	seen := make(map[string]bool, len(direct))
	for _, ex := range direct {
		seen[string(ex.Record.Category)+"/"+ex.Record.ID] = true
	}

	out := direct
	for _, ex := range direct {
		if len(out) >= k {
			break
		}
		for _, linked := range ex.Record.Links {
			if len(out) >= k {
				break
			}
			key := string(ex.Record.Category) + "/" + linked
			if seen[key] {
				continue
			}
			seen[key] = true
			rec, err := r.store.Get(ctx, ex.Record.Category, linked)
			if err != nil || rec.Tombstone {
				continue
			}
			out = append(out, Excerpt{Record: rec, Score: ex.Score, Linked: true})
		}
	}
	return out
}
