package core

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// Record is a single persisted unit of long-term agent knowledge.
type Record struct {
	// ID is stable for the record's lifetime. It is derived from a slug
	// of the record's topic plus a numeric suffix when the slug is taken.
	ID string

	// Category the record belongs to. Never changes after creation.
	Category Category

	// Body is markdown. Procedural memories use the recognized section
	// headers (Task Aim, Steps, Alternatives, Notes); everything else is
	// free text. Empty for tombstones.
	Body string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Revision increases by one on every mutation. Writers carry the
	// revision they last read so a concurrent update is detected instead
	// of clobbered.
	Revision uint64

	// Links are outgoing weak references to other record IDs in the same
	// category. Relation only, not ownership.
	Links []string

	// Embedding is nil until computed and is reset to nil whenever the
	// body changes. The similarity index recomputes it lazily.
	Embedding []float32

	// SourceRef points back at the originating conversation. Audit only.
	SourceRef string

	// Tombstone marks a soft-deleted record: identifier retained, body
	// cleared, links severed.
	Tombstone bool
}

// BodyHash returns the hex SHA-256 of the body. Duplicate detection on
// Add compares exact body hashes, never similarity.
func (r *Record) BodyHash() string {
	sum := sha256.Sum256([]byte(r.Body))
	return hex.EncodeToString(sum[:])
}

// HasLink reports whether the record already links to target.
func (r *Record) HasLink(target string) bool {
	for _, l := range r.Links {
		if l == target {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand records across goroutines
// without sharing slices.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Links = append([]string(nil), r.Links...)
	cp.Embedding = append([]float32(nil), r.Embedding...)
	if r.Embedding == nil {
		cp.Embedding = nil
	}
	if r.Links == nil {
		cp.Links = nil
	}
	return &cp
}

// Cluster is a named grouping of record IDs within one category.
// Clusters are derived, not authoritative: they can always be recomputed
// from records plus an affinity threshold, so losing one is not data loss.
type Cluster struct {
	Label    string   `yaml:"label"`
	Category Category `yaml:"category"`
	Members  []string `yaml:"members"`
}

// Has reports whether id is already a member.
func (c *Cluster) Has(id string) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

var (
	slugInvalid  = regexp.MustCompile(`[^a-z0-9]+`)
	slugCollapse = regexp.MustCompile(`-{2,}`)
)

// Slugify derives a filesystem- and identifier-safe slug from a topic:
// lowercase, runs of non-alphanumerics collapsed to single hyphens.
func Slugify(topic string) string {
	s := strings.ToLower(strings.TrimSpace(topic))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugCollapse.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "memory"
	}
	return s
}
