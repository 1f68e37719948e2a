package core

import (
	"fmt"
	"strings"
)

// Recognized section headers for procedural memories. Bodies that use
// them are rendered as `## <name>` markdown blocks in this order.
const (
	SectionTaskAim      = "Task Aim"
	SectionSteps        = "Steps"
	SectionAlternatives = "Alternatives"
	SectionNotes        = "Notes"
)

// SectionOrder is the canonical ordering for recognized sections.
// Unrecognized section names are appended after these in insertion order.
var SectionOrder = []string{SectionTaskAim, SectionSteps, SectionAlternatives, SectionNotes}

// Sections is a parsed markdown body: named `##` blocks plus any
// free-form preamble that precedes the first header.
type Sections struct {
	Preamble string
	names    []string
	content  map[string]string
}

// ParseSections splits a markdown body into its `## ` sections. A body
// with no section headers parses to preamble only, which round-trips
// unchanged through Render.
func ParseSections(body string) *Sections {
	s := &Sections{content: make(map[string]string)}
	lines := strings.Split(body, "\n")

	current := ""
	var buf []string
	flush := func() {
		text := strings.Trim(strings.Join(buf, "\n"), "\n")
		if current == "" {
			s.Preamble = text
		} else {
			s.set(current, text)
		}
		buf = buf[:0]
	}

	for _, line := range lines {
		if name, ok := sectionHeader(line); ok {
			flush()
			current = name
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return s
}

func sectionHeader(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "## ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")), true
}

func (s *Sections) set(name, text string) {
	if _, exists := s.content[name]; !exists {
		s.names = append(s.names, name)
	}
	s.content[name] = text
}

// Get returns a section's content.
func (s *Sections) Get(name string) (string, bool) {
	text, ok := s.content[name]
	return text, ok
}

// Set replaces a section's content, creating the section if absent.
// Replacement rather than concatenation keeps the operation idempotent.
func (s *Sections) Set(name, text string) {
	s.set(name, strings.Trim(text, "\n"))
}

// Names returns section names: recognized ones in canonical order first,
// then the rest in insertion order.
func (s *Sections) Names() []string {
	seen := make(map[string]bool, len(s.names))
	var out []string
	for _, name := range SectionOrder {
		if _, ok := s.content[name]; ok {
			out = append(out, name)
			seen[name] = true
		}
	}
	for _, name := range s.names {
		if !seen[name] {
			out = append(out, name)
		}
	}
	return out
}

// Render serializes the sections back to markdown.
func (s *Sections) Render() string {
	var b strings.Builder
	if s.Preamble != "" {
		b.WriteString(s.Preamble)
	}
	for _, name := range s.Names() {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", name, s.content[name])
	}
	return b.String()
}
