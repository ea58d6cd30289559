package domain

import (
	"fmt"
)

// Category splits the catalog into machine-generated and human-sourced content.
type Category string

const (
	// CategoryAI marks machine-generated items.
	CategoryAI Category = "ai"
	// CategoryHuman marks human-sourced items.
	CategoryHuman Category = "human"
)

// ParseCategory validates a raw category string from a request.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryAI:
		return CategoryAI, nil
	case CategoryHuman:
		return CategoryHuman, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ContentItem is one deliverable image in the catalog. Removed items are
// soft-deactivated, never hard-deleted, so historical seen-records stay valid.
type ContentItem struct {
	ID       int64
	URL      string
	Category Category
	Active   bool
}

// IsAI reports whether the item belongs to the machine-generated category.
func (i ContentItem) IsAI() bool {
	return i.Category == CategoryAI
}
