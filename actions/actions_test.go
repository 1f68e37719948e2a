package actions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cogents/memu-go/core"
	"github.com/cogents/memu-go/embed/mock"
	"github.com/cogents/memu-go/index"
	"github.com/cogents/memu-go/store"
)

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	st, err := store.New(store.Config{Dir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	return &Deps{
		Store:     st,
		Index:     index.New(st, mock.New(32), zap.NewNop()),
		SourceRef: "conv-test",
		Logger:    zap.NewNop(),
	}
}

func mustApply(t *testing.T, deps *Deps, act Action) *Result {
	t.Helper()
	res, err := Apply(context.Background(), deps, act)
	require.NoError(t, err)
	return res
}

func TestParseRejectsUnknownAction(t *testing.T) {
	t.Parallel()
	_, err := Parse("drop_all_memories", json.RawMessage(`{}`))
	var unknown *core.UnknownActionError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "drop_all_memories", unknown.Name)
}

func TestParseValidatesArguments(t *testing.T) {
	t.Parallel()
	_, err := Parse(NameAdd, json.RawMessage(`{"topic":"x","category":"nonsense","body":"y"}`))
	require.Error(t, err)

	_, err = Parse(NameCluster, json.RawMessage(`{"label":"l","members":["only-one"]}`))
	require.Error(t, err)

	_, err = Parse(NameAdd, json.RawMessage(`not json`))
	require.Error(t, err)
}

func TestAddDuplicateAndDisambiguation(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	res := mustApply(t, deps, &Add{
		Topic:    "Alice intro",
		Category: "general",
		Body:     "## Task Aim\n\nIntroduce Alice.",
	})
	require.Equal(t, "alice-intro", res.RecordID)

	rec, err := deps.Store.Get(ctx, core.CategoryGeneral, "alice-intro")
	require.NoError(t, err)
	require.Equal(t, "## Task Aim\n\nIntroduce Alice.", rec.Body)
	require.Equal(t, "conv-test", rec.SourceRef)

	// Identical body in the same category is a duplicate, checked by
	// exact hash, regardless of topic.
	_, err = Apply(ctx, deps, &Add{
		Topic:    "Alice introduction again",
		Category: "general",
		Body:     "## Task Aim\n\nIntroduce Alice.",
	})
	require.True(t, core.IsDuplicate(err))

	// Same topic with different content gets a disambiguated id.
	res = mustApply(t, deps, &Add{
		Topic:    "Alice intro",
		Category: "general",
		Body:     "Alice prefers morning meetings.",
	})
	require.Equal(t, "alice-intro-2", res.RecordID)
}

func TestAddDuplicateWithTrailingNewline(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)

	mustApply(t, deps, &Add{Topic: "fact", Category: "general", Body: "same fact\n"})
	_, err := Apply(context.Background(), deps, &Add{Topic: "fact again", Category: "general", Body: "same fact\n"})
	require.True(t, core.IsDuplicate(err))
}

func TestAddSameBodyDifferentCategory(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)

	mustApply(t, deps, &Add{Topic: "whiskers", Category: "general", Body: "The cat is called Whiskers."})
	// Categories partition the space: no cross-category duplicate check.
	mustApply(t, deps, &Add{Topic: "whiskers", Category: "profile", Body: "The cat is called Whiskers."})
}

func TestUpdateMergesSection(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	mustApply(t, deps, &Add{Topic: "deploy", Category: "activity", Body: "## Task Aim\n\nShip it."})

	mustApply(t, deps, &Update{Category: "activity", Identifier: "deploy", Section: "Notes", Text: "Staging first."})
	rec, err := deps.Store.Get(ctx, core.CategoryActivity, "deploy")
	require.NoError(t, err)
	require.Contains(t, rec.Body, "## Notes\n\nStaging first.")

	// Replaying the same update replaces the section, it does not grow.
	mustApply(t, deps, &Update{Category: "activity", Identifier: "deploy", Section: "Notes", Text: "Staging first."})
	again, err := deps.Store.Get(ctx, core.CategoryActivity, "deploy")
	require.NoError(t, err)
	require.Equal(t, rec.Body, again.Body)
}

func TestUpdateMissingOrTombstoned(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	_, err := Apply(ctx, deps, &Update{Category: "general", Identifier: "ghost", Section: "Notes", Text: "x"})
	require.True(t, core.IsNotFound(err))

	mustApply(t, deps, &Add{Topic: "gone", Category: "general", Body: "soon deleted"})
	mustApply(t, deps, &Delete{Category: "general", Identifier: "gone"})

	_, err = Apply(ctx, deps, &Update{Category: "general", Identifier: "gone", Section: "Notes", Text: "x"})
	require.True(t, core.IsNotFound(err))
}

func TestLinkIdempotent(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	mustApply(t, deps, &Add{Topic: "a", Category: "general", Body: "record a"})
	mustApply(t, deps, &Add{Topic: "b", Category: "general", Body: "record b"})

	mustApply(t, deps, &Link{Source: "a", Target: "b"})
	mustApply(t, deps, &Link{Source: "a", Target: "b"})

	rec, err := deps.Store.Get(ctx, core.CategoryGeneral, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, rec.Links)
}

func TestLinkErrors(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	mustApply(t, deps, &Add{Topic: "a", Category: "general", Body: "record a"})
	mustApply(t, deps, &Add{Topic: "p", Category: "profile", Body: "profile p"})

	_, err := Apply(ctx, deps, &Link{Source: "a", Target: "missing"})
	require.True(t, core.IsNotFound(err))

	var mismatch *core.CategoryMismatchError
	_, err = Apply(ctx, deps, &Link{Source: "a", Target: "p"})
	require.ErrorAs(t, err, &mismatch)
}

func TestClusterExtendsAndRejectsMixedCategories(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	mustApply(t, deps, &Add{Topic: "nasdaq history", Category: "general", Body: "nasdaq"})
	mustApply(t, deps, &Add{Topic: "csv export", Category: "general", Body: "csv"})
	mustApply(t, deps, &Add{Topic: "alice", Category: "profile", Body: "alice"})

	res := mustApply(t, deps, &Cluster{Label: "stock research", Members: []string{"nasdaq-history", "csv-export"}})
	require.Contains(t, res.Summary, "2 members")

	clusters, err := deps.Store.Clusters(ctx, core.CategoryGeneral)
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	var mismatch *core.CategoryMismatchError
	_, err = Apply(ctx, deps, &Cluster{Label: "mixed", Members: []string{"nasdaq-history", "alice"}})
	require.ErrorAs(t, err, &mismatch)
}

func TestDeleteTombstones(t *testing.T) {
	t.Parallel()
	deps := newTestDeps(t)
	ctx := context.Background()

	mustApply(t, deps, &Add{Topic: "a", Category: "general", Body: "record a"})
	mustApply(t, deps, &Add{Topic: "b", Category: "general", Body: "record b"})
	mustApply(t, deps, &Link{Source: "b", Target: "a"})

	mustApply(t, deps, &Delete{Category: "general", Identifier: "a"})

	rec, err := deps.Store.Get(ctx, core.CategoryGeneral, "a")
	require.NoError(t, err)
	require.True(t, rec.Tombstone)

	b, err := deps.Store.Get(ctx, core.CategoryGeneral, "b")
	require.NoError(t, err)
	require.Empty(t, b.Links)

	_, err = Apply(ctx, deps, &Delete{Category: "general", Identifier: "never-was"})
	require.True(t, core.IsNotFound(err))
}

func TestCatalogMatchesParser(t *testing.T) {
	t.Parallel()
	for _, tool := range Catalog() {
		_, err := Parse(tool.Name, json.RawMessage(`{}`))
		// Validation errors are fine; an unknown-action error means the
		// catalog and the parser drifted apart.
		var unknown *core.UnknownActionError
		require.False(t, errors.As(err, &unknown), "catalog entry %s unknown to parser", tool.Name)
	}
}
