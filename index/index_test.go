package index

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cogents/memu-go/core"
	"github.com/cogents/memu-go/store"
)

// bowEmbedder embeds text as a normalized bag-of-words vector over a
// fixed vocabulary, giving real cosine behavior in tests.
type bowEmbedder struct {
	vocab []string
}

func newBowEmbedder() *bowEmbedder {
	return &bowEmbedder{vocab: []string{
		"stock", "nasdaq", "historical", "data", "csv",
		"cat", "whiskers", "hiking", "mountains", "engineer",
	}}
}

func (b *bowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(b.vocab))
	var norm float32
	for i, word := range b.vocab {
		n := float32(strings.Count(lower, word))
		vec[i] = n
		norm += n * n
	}
	if norm == 0 {
		vec[0] = 1 // degenerate text still gets a valid unit vector
		return vec, nil
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (b *bowEmbedder) Dimensions() int { return len(b.vocab) }

func newTestIndex(t *testing.T) (*Index, *store.Store, *bowEmbedder) {
	t.Helper()
	st, err := store.New(store.Config{Dir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	emb := newBowEmbedder()
	return New(st, emb, zap.NewNop()), st, emb
}

func TestQueryRanksBySimilarity(t *testing.T) {
	t.Parallel()
	ix, st, emb := newTestIndex(t)
	ctx := context.Background()

	_, err := st.Put(ctx, core.CategoryGeneral, "nasdaq-history",
		"## Task Aim\n\nRetrieve historical stock data from Nasdaq as CSV.", 0, "")
	require.NoError(t, err)
	_, err = st.Put(ctx, core.CategoryGeneral, "whiskers",
		"The user has a cat named Whiskers.", 0, "")
	require.NoError(t, err)

	query, err := emb.Embed(ctx, "how to get historical stock data")
	require.NoError(t, err)

	matches, err := ix.Query(ctx, query, 3, core.CategoryGeneral)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "nasdaq-history", matches[0].ID)
	require.Greater(t, matches[0].Score, matches[1].Score)
}

func TestQueryClampsK(t *testing.T) {
	t.Parallel()
	ix, st, emb := newTestIndex(t)
	ctx := context.Background()

	_, err := st.Put(ctx, core.CategoryGeneral, "only", "stock data", 0, "")
	require.NoError(t, err)

	query, err := emb.Embed(ctx, "stock")
	require.NoError(t, err)

	matches, err := ix.Query(ctx, query, 10, core.CategoryGeneral)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// Empty category yields no matches rather than an error.
	matches, err = ix.Query(ctx, query, 5, core.CategoryEvent)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestTieBreakPrefersRecent(t *testing.T) {
	t.Parallel()
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	st, err := store.New(store.Config{Dir: t.TempDir(), Now: func() time.Time { return clock }}, zap.NewNop())
	require.NoError(t, err)
	emb := newBowEmbedder()
	ix := New(st, emb, zap.NewNop())
	ctx := context.Background()

	// Identical bodies embed to identical vectors: a guaranteed tie.
	_, err = st.Put(ctx, core.CategoryGeneral, "older", "nasdaq stock data", 0, "")
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	_, err = st.Put(ctx, core.CategoryGeneral, "newer", "nasdaq stock data", 0, "")
	require.NoError(t, err)

	query, err := emb.Embed(ctx, "nasdaq stock data")
	require.NoError(t, err)

	matches, err := ix.Query(ctx, query, 2, core.CategoryGeneral)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, matches[0].Score, matches[1].Score)
	require.Equal(t, "newer", matches[0].ID)
}

func TestBodyChangeRecomputesVector(t *testing.T) {
	t.Parallel()
	ix, st, emb := newTestIndex(t)
	ctx := context.Background()

	rec, err := st.Put(ctx, core.CategoryGeneral, "drifting",
		"The user enjoys hiking in the mountains.", 0, "")
	require.NoError(t, err)
	_, err = st.Put(ctx, core.CategoryGeneral, "anchor", "cat whiskers", 0, "")
	require.NoError(t, err)

	query, err := emb.Embed(ctx, "historical stock data nasdaq")
	require.NoError(t, err)

	matches, err := ix.Query(ctx, query, 2, core.CategoryGeneral)
	require.NoError(t, err)
	require.NotEqual(t, "drifting", matches[0].ID)

	// Rewrite the body; the revision bump makes the index entry stale
	// and the next query must reflect the recomputed vector.
	_, err = st.Put(ctx, core.CategoryGeneral, "drifting",
		"Steps to download historical stock data from Nasdaq.", rec.Revision, "")
	require.NoError(t, err)

	matches, err = ix.Query(ctx, query, 2, core.CategoryGeneral)
	require.NoError(t, err)
	require.Equal(t, "drifting", matches[0].ID)
}

func TestRepairDropsTombstones(t *testing.T) {
	t.Parallel()
	ix, st, emb := newTestIndex(t)
	ctx := context.Background()

	_, err := st.Put(ctx, core.CategoryGeneral, "doomed", "nasdaq stock data", 0, "")
	require.NoError(t, err)

	query, err := emb.Embed(ctx, "nasdaq")
	require.NoError(t, err)

	matches, err := ix.Query(ctx, query, 1, core.CategoryGeneral)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	require.NoError(t, st.Tombstone(ctx, core.CategoryGeneral, "doomed"))

	matches, err = ix.Query(ctx, query, 1, core.CategoryGeneral)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestRemoveIsIdempotent(t *testing.T) {
	t.Parallel()
	ix, _, _ := newTestIndex(t)
	ctx := context.Background()

	// Removing from an untouched category is a no-op.
	require.NoError(t, ix.Remove(ctx, core.CategoryProfile, "ghost"))
}
