package search

// Synonym rewrites every occurrence of Term with Expansion. The expansion
// keeps the term itself so the original wording still matches.
type Synonym struct {
	Term      string `yaml:"term" json:"term"`
	Expansion string `yaml:"expansion" json:"expansion"`
}

// DefaultSynonyms is the film-domain table: settings, creatures and tropes
// whose catalog wording often differs from how people ask for them.
//
// Order matters. Rules are applied top to bottom and a later rule sees the
// text produced by earlier ones ("cruise ship" expands to "... ship ...",
// which a later "ship" rule would rewrite again).
var DefaultSynonyms = []Synonym{
	{"cruise ship", "cruise ship boat vessel ocean liner ship sailing"},
	{"spaceship", "spaceship spacecraft space ship vessel"},
	{"haunted house", "haunted house mansion manor ghost"},
	{"time travel", "time travel time machine temporal"},
	{"superhero", "superhero hero comic book marvel dc"},
	{"zombie", "zombie undead walking dead"},
	{"vampire", "vampire dracula bloodsucker"},
	{"detective", "detective investigator mystery crime"},
	{"heist", "heist robbery theft stealing"},
	{"war", "war battle combat military"},
}
