package store

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cogents/memu-go/core"
)

const frontMatterDelim = "---"

// frontMatter is the YAML header of a record file. Everything after the
// closing delimiter is the markdown body, verbatim.
type frontMatter struct {
	ID        string    `yaml:"id"`
	Category  string    `yaml:"category"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
	Revision  uint64    `yaml:"revision"`
	Links     []string  `yaml:"links,omitempty"`
	SourceRef string    `yaml:"source_ref,omitempty"`
	Tombstone bool      `yaml:"tombstone,omitempty"`
}

// encodeRecord serializes a record to its on-disk markdown form.
func encodeRecord(rec *core.Record) ([]byte, error) {
	fm := frontMatter{
		ID:        rec.ID,
		Category:  string(rec.Category),
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
		Revision:  rec.Revision,
		Links:     rec.Links,
		SourceRef: rec.SourceRef,
		Tombstone: rec.Tombstone,
	}

	head, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("marshal front matter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString(frontMatterDelim + "\n")
	b.Write(head)
	b.WriteString(frontMatterDelim + "\n")
	b.WriteString(rec.Body)
	// Exactly one newline terminates the body on disk, and decode
	// strips exactly one, so a body with its own trailing newline
	// round-trips byte for byte.
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// decodeRecord parses the on-disk markdown form back into a record.
// The embedding is deliberately absent: it lives in the similarity
// index, which rebuilds it from the body on demand.
func decodeRecord(data []byte) (*core.Record, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return nil, fmt.Errorf("record file missing front matter")
	}
	rest := text[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	if end < 0 {
		return nil, fmt.Errorf("record file missing front matter terminator")
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(rest[:end+1]), &fm); err != nil {
		return nil, fmt.Errorf("unmarshal front matter: %w", err)
	}
	category, err := core.ParseCategory(fm.Category)
	if err != nil {
		return nil, err
	}

	body := rest[end+len(frontMatterDelim)+2:]
	body = strings.TrimSuffix(body, "\n") // the terminator encode wrote

	return &core.Record{
		ID:        fm.ID,
		Category:  category,
		Body:      body,
		CreatedAt: fm.CreatedAt,
		UpdatedAt: fm.UpdatedAt,
		Revision:  fm.Revision,
		Links:     fm.Links,
		SourceRef: fm.SourceRef,
		Tombstone: fm.Tombstone,
	}, nil
}
