package core

import "fmt"

// Category is a top-level partition of the memory space. Identifiers are
// unique within a category; the categories together partition the
// identifier space.
type Category string

const (
	// CategoryProfile holds durable facts about people.
	CategoryProfile Category = "profile"

	// CategoryEvent holds dated occurrences.
	CategoryEvent Category = "event"

	// CategoryActivity holds procedural how-to memories.
	CategoryActivity Category = "activity"

	// CategoryGeneral holds everything that fits nowhere else.
	CategoryGeneral Category = "general"
)

// Categories lists the closed set of valid categories in stable order.
func Categories() []Category {
	return []Category{CategoryProfile, CategoryEvent, CategoryActivity, CategoryGeneral}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryProfile, CategoryEvent, CategoryActivity, CategoryGeneral:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Valid reports whether c is one of the closed category set.
func (c Category) Valid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}
