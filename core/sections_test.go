package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSectionsRoundTrip(t *testing.T) {
	t.Parallel()
	body := "## Task Aim\n\nGet historical stock data.\n\n## Steps\n\n1. Open Nasdaq.\n2. Export CSV.\n\n## Notes\n\nRate limits apply."

	s := ParseSections(body)
	aim, ok := s.Get(SectionTaskAim)
	require.True(t, ok)
	require.Equal(t, "Get historical stock data.", aim)

	require.Equal(t, body, s.Render())
	// A second parse/render cycle must be stable.
	require.Equal(t, body, ParseSections(s.Render()).Render())
}

func TestParseSectionsFreeForm(t *testing.T) {
	t.Parallel()
	body := "Alice is a software engineer who likes hiking."
	s := ParseSections(body)
	require.Equal(t, body, s.Preamble)
	require.Equal(t, body, s.Render())
}

func TestSetReplacesSection(t *testing.T) {
	t.Parallel()
	s := ParseSections("## Notes\n\nold")
	s.Set(SectionNotes, "new")
	text, _ := s.Get(SectionNotes)
	require.Equal(t, "new", text)
	require.Equal(t, "## Notes\n\nnew", s.Render())
}

func TestSectionCanonicalOrder(t *testing.T) {
	t.Parallel()
	s := ParseSections("")
	s.Set(SectionNotes, "n")
	s.Set(SectionTaskAim, "a")
	require.Equal(t, []string{SectionTaskAim, SectionNotes}, s.Names())
}

func TestSlugify(t *testing.T) {
	t.Parallel()
	require.Equal(t, "alice-intro", Slugify("Alice Intro"))
	require.Equal(t, "nasdaq-historical-data", Slugify("  Nasdaq: historical data!! "))
	require.Equal(t, "memory", Slugify("???"))
}
