package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/cogents/memu-go/core"
)

// Add creates a new memory record. The identifier is derived from the
// topic slug; when the slug is taken by different content, a numeric
// suffix disambiguates. Byte-identical content anywhere in the category
// is a DuplicateError. Near-duplicate content is deliberately kept as a
// separate record.
type Add struct {
	Topic    string `json:"topic"`
	Category string `json:"category"`
	Body     string `json:"body"`
}

func (a *Add) Name() string { return NameAdd }

func (a *Add) Validate() error {
	if strings.TrimSpace(a.Topic) == "" {
		return fmt.Errorf("topic is required")
	}
	if _, err := core.ParseCategory(a.Category); err != nil {
		return err
	}
	if strings.TrimSpace(a.Body) == "" {
		return fmt.Errorf("body is required")
	}
	return nil
}

func (a *Add) apply(ctx context.Context, deps *Deps) (*Result, error) {
	category := core.Category(a.Category)

	probe := &core.Record{Body: a.Body}
	if existing, ok, err := deps.Store.FindByBodyHash(ctx, category, probe.BodyHash()); err != nil {
		return nil, err
	} else if ok {
		return nil, &core.DuplicateError{Category: category, ExistingID: existing.ID}
	}

	id, err := freeIdentifier(ctx, deps, category, core.Slugify(a.Topic))
	if err != nil {
		return nil, err
	}

	rec, err := deps.Store.Put(ctx, category, id, a.Body, 0, deps.SourceRef)
	if err != nil {
		return nil, err
	}
	if err := deps.Index.Remove(ctx, category, id); err != nil {
		return nil, err
	}
	return &Result{
		Summary:  fmt.Sprintf("created %s/%s (revision %d)", category, rec.ID, rec.Revision),
		RecordID: rec.ID,
	}, nil
}

// freeIdentifier returns slug, or the first slug-N not yet in use.
// Tombstoned identifiers stay reserved so stale references keep
// resolving to the record they meant.
func freeIdentifier(ctx context.Context, deps *Deps, category core.Category, slug string) (string, error) {
	candidate := slug
	for suffix := 2; ; suffix++ {
		_, err := deps.Store.Get(ctx, category, candidate)
		if core.IsNotFound(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s-%d", slug, suffix)
	}
}

// Update replaces one named section of an existing record. It goes
// through the optimistic write path: a concurrent writer between the
// read and the put surfaces as a ConflictError, which the orchestrator
// retries once against the fresh revision.
type Update struct {
	Category   string `json:"category"`
	Identifier string `json:"identifier"`
	Section    string `json:"section"`
	Text       string `json:"text"`
}

func (u *Update) Name() string { return NameUpdate }

func (u *Update) Validate() error {
	if _, err := core.ParseCategory(u.Category); err != nil {
		return err
	}
	if u.Identifier == "" {
		return fmt.Errorf("identifier is required")
	}
	if strings.TrimSpace(u.Section) == "" {
		return fmt.Errorf("section is required")
	}
	return nil
}

func (u *Update) apply(ctx context.Context, deps *Deps) (*Result, error) {
	category := core.Category(u.Category)

	rec, err := deps.Store.Get(ctx, category, u.Identifier)
	if err != nil {
		return nil, err
	}
	if rec.Tombstone {
		return nil, &core.NotFoundError{Category: category, ID: u.Identifier}
	}

	sections := core.ParseSections(rec.Body)
	sections.Set(u.Section, u.Text)
	updated, err := deps.Store.Put(ctx, category, u.Identifier, sections.Render(), rec.Revision, "")
	if err != nil {
		return nil, err
	}
	if err := deps.Index.Remove(ctx, category, u.Identifier); err != nil {
		return nil, err
	}
	return &Result{
		Summary:  fmt.Sprintf("updated %s/%s section %q (revision %d)", category, u.Identifier, u.Section, updated.Revision),
		RecordID: u.Identifier,
	}, nil
}

// Link records a directed edge between two existing records. Both are
// resolved by bare identifier; endpoints in different categories fail
// with a CategoryMismatchError.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

func (l *Link) Name() string { return NameLink }

func (l *Link) Validate() error {
	if l.Source == "" || l.Target == "" {
		return fmt.Errorf("source and target are required")
	}
	if l.Source == l.Target {
		return fmt.Errorf("cannot link a memory to itself")
	}
	return nil
}

func (l *Link) apply(ctx context.Context, deps *Deps) (*Result, error) {
	source, err := findRecord(ctx, deps, l.Source)
	if err != nil {
		return nil, err
	}
	target, err := findRecord(ctx, deps, l.Target)
	if err != nil {
		return nil, err
	}
	if source.Category != target.Category {
		return nil, &core.CategoryMismatchError{Want: source.Category, Got: target.Category, ID: target.ID}
	}

	if _, err := deps.Store.AddLink(ctx, source.Category, source.ID, target.ID); err != nil {
		return nil, err
	}
	return &Result{
		Summary:  fmt.Sprintf("linked %s/%s -> %s", source.Category, source.ID, target.ID),
		RecordID: source.ID,
	}, nil
}

// Cluster groups two or more records of one category under a label,
// creating or extending the named cluster.
type Cluster struct {
	Label   string   `json:"label"`
	Members []string `json:"members"`
}

func (c *Cluster) Name() string { return NameCluster }

func (c *Cluster) Validate() error {
	if strings.TrimSpace(c.Label) == "" {
		return fmt.Errorf("label is required")
	}
	if len(c.Members) < 2 {
		return fmt.Errorf("a cluster needs at least two members")
	}
	return nil
}

func (c *Cluster) apply(ctx context.Context, deps *Deps) (*Result, error) {
	var category core.Category
	for i, id := range c.Members {
		rec, err := findRecord(ctx, deps, id)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			category = rec.Category
			continue
		}
		if rec.Category != category {
			return nil, &core.CategoryMismatchError{Want: category, Got: rec.Category, ID: rec.ID}
		}
	}

	cluster, err := deps.Store.ExtendCluster(ctx, category, c.Label, c.Members)
	if err != nil {
		return nil, err
	}
	return &Result{
		Summary: fmt.Sprintf("cluster %q in %s now has %d members", cluster.Label, category, len(cluster.Members)),
	}, nil
}

// Delete tombstones a record: identifier retained, body cleared, links
// severed in both directions.
type Delete struct {
	Category   string `json:"category"`
	Identifier string `json:"identifier"`
}

func (d *Delete) Name() string { return NameDelete }

func (d *Delete) Validate() error {
	if _, err := core.ParseCategory(d.Category); err != nil {
		return err
	}
	if d.Identifier == "" {
		return fmt.Errorf("identifier is required")
	}
	return nil
}

func (d *Delete) apply(ctx context.Context, deps *Deps) (*Result, error) {
	category := core.Category(d.Category)
	if err := deps.Store.Tombstone(ctx, category, d.Identifier); err != nil {
		return nil, err
	}
	if err := deps.Index.Remove(ctx, category, d.Identifier); err != nil {
		return nil, err
	}
	return &Result{
		Summary:  fmt.Sprintf("tombstoned %s/%s", category, d.Identifier),
		RecordID: d.Identifier,
	}, nil
}
