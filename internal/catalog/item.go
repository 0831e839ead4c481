// Package catalog holds the film catalog: the immutable item records,
// the CSV loader that validates them, and the text composed for embedding.
package catalog

import "strings"

// Item is one catalog record. Items are never mutated after loading.
type Item struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Year       string   `json:"year"`
	Genres     []string `json:"genres"`
	Keywords   []string `json:"keywords"`
	Plot       string   `json:"plot"`
	Rating     float64  `json:"rating"`
	Popularity float64  `json:"popularity"`
	PosterPath string   `json:"poster_path,omitempty"`
}

// GenreString renders genres the way the catalog file stores them: "Drama, Romance".
func (it Item) GenreString() string {
	return strings.Join(it.Genres, listSeparator)
}

// KeywordString renders keywords comma-joined.
func (it Item) KeywordString() string {
	return strings.Join(it.Keywords, listSeparator)
}

const listSeparator = ", "

// Catalog is a dense, ordinal-indexed sequence of items. Ordinal i is the
// join key with vector i of the nearest-neighbour index.
type Catalog struct {
	items    []Item
	checksum string
	skipped  int
}

// New builds a catalog from items. The slice is copied.
func New(items []Item) *Catalog {
	cp := make([]Item, len(items))
	copy(cp, items)
	return &Catalog{items: cp}
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// At returns the item at ordinal i. It panics when i is out of range, like
// a slice index.
func (c *Catalog) At(i int) Item {
	return c.items[i]
}

// Items returns a copy of all items in ordinal order.
func (c *Catalog) Items() []Item {
	cp := make([]Item, len(c.items))
	copy(cp, c.items)
	return cp
}

// Checksum is the sha256 of the source file, or "" for in-memory catalogs.
func (c *Catalog) Checksum() string {
	return c.checksum
}

// Skipped is the number of rows dropped by cleaning during load.
func (c *Catalog) Skipped() int {
	return c.skipped
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
