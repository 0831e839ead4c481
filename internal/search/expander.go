package search

import "strings"

// QueryExpander widens recall by rewriting known phrases into a phrase plus
// its synonyms before the query is embedded. It never touches the index.
//
// Example:
//
//	Input:  "Romance on a Cruise Ship"
//	Output: "romance on a cruise ship boat vessel ocean liner ship sailing"
type QueryExpander struct {
	synonyms []Synonym
}

// QueryExpanderOption configures the query expander.
type QueryExpanderOption func(*QueryExpander)

// WithSynonyms appends rules after the defaults. Terms are matched
// case-insensitively.
func WithSynonyms(synonyms ...Synonym) QueryExpanderOption {
	return func(e *QueryExpander) {
		for _, s := range synonyms {
			term := strings.ToLower(strings.TrimSpace(s.Term))
			if term == "" {
				continue
			}
			e.synonyms = append(e.synonyms, Synonym{Term: term, Expansion: strings.ToLower(s.Expansion)})
		}
	}
}

// WithoutDefaults drops the built-in table, leaving only rules added by
// later options.
func WithoutDefaults() QueryExpanderOption {
	return func(e *QueryExpander) {
		e.synonyms = e.synonyms[:0]
	}
}

// NewQueryExpander creates an expander with DefaultSynonyms.
func NewQueryExpander(opts ...QueryExpanderOption) *QueryExpander {
	e := &QueryExpander{synonyms: make([]Synonym, len(DefaultSynonyms))}
	copy(e.synonyms, DefaultSynonyms)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand lower-cases query and applies every rule in table order, replacing
// all occurrences of a rule's term with its expansion. Matching is plain
// substring matching, so "war" also fires inside "award".
func (e *QueryExpander) Expand(query string) string {
	text := strings.ToLower(query)
	for _, s := range e.synonyms {
		if strings.Contains(text, s.Term) {
			text = strings.ReplaceAll(text, s.Term, s.Expansion)
		}
	}
	return text
}

// Synonyms returns a copy of the active rules in application order.
func (e *QueryExpander) Synonyms() []Synonym {
	out := make([]Synonym, len(e.synonyms))
	copy(out, e.synonyms)
	return out
}
