// Package validation runs data-driven relevance checks against a search
// engine.
//
// A suite is a YAML file of queries with the titles expected near the top
// of the results:
//
//	queries:
//	  - id: R1
//	    name: cruise romance
//	    query: "two strangers fall in love on a ship"
//	    expected: ["Love Boat"]
//	    top_k: 3
//	negative:
//	  - id: N1
//	    query: "   "
//
// Negative queries pass as long as the engine answers without panicking;
// an error result counts as a pass.
package validation

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/cinesphere/internal/search"
)

// QuerySpec is one relevance check.
type QuerySpec struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name,omitempty"`
	Query    string   `yaml:"query" json:"query"`
	Expected []string `yaml:"expected" json:"expected,omitempty"` // titles, case-insensitive
	TopK     int      `yaml:"top_k" json:"top_k,omitempty"`      // 0 uses the validator's options
	Notes    string   `yaml:"notes" json:"notes,omitempty"`
}

// Suite holds the queries loaded from a YAML file.
type Suite struct {
	Queries  []QuerySpec `yaml:"queries"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadSuite reads a suite from path. Unknown keys are rejected.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Suite
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse suite %s: %w", path, err)
	}

	for i, q := range s.Queries {
		if len(q.Expected) == 0 {
			return nil, fmt.Errorf("suite %s: query %d (%s) has no expected titles", path, i, q.ID)
		}
	}
	return &s, nil
}

// Searcher is the part of the engine the validator needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.ScoredResult, error)
}

// QueryResult captures the outcome of one query.
type QueryResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration_ns"`
	TopResults []string      `json:"top_results"`
	MatchedAt  int           `json:"matched_at"` // 1-based rank of the first expected title, 0 if absent
	Error      string        `json:"error,omitempty"`
}

// Report captures a full suite run.
type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	Queries   []QueryResult `json:"queries"`
	Negative  []QueryResult `json:"negative"`
	Passed    int           `json:"passed"`
	Total     int           `json:"total"`
	NegPassed int           `json:"negative_passed"`
	NegTotal  int           `json:"negative_total"`
}

// OK reports whether every query passed.
func (r *Report) OK() bool {
	return r.Passed == r.Total && r.NegPassed == r.NegTotal
}

// PassRate is the share of positive queries that passed.
func (r *Report) PassRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(r.Total)
}

// Validator runs suites against a searcher.
type Validator struct {
	searcher Searcher
	opts     search.SearchOptions
}

// NewValidator creates a validator that searches with opts unless a query
// sets its own top_k.
func NewValidator(s Searcher, opts search.SearchOptions) *Validator {
	return &Validator{searcher: s, opts: opts}
}

// RunQuery executes a single positive query.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) QueryResult {
	opts := v.opts
	if spec.TopK > 0 {
		opts.TopK = spec.TopK
	}

	start := time.Now()
	results, err := v.searcher.Search(ctx, spec.Query, opts)
	res := QueryResult{Spec: spec, Duration: time.Since(start)}
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.TopResults = make([]string, len(results))
	for i, r := range results {
		res.TopResults[i] = r.Title
	}
	res.MatchedAt = firstMatch(res.TopResults, spec.Expected)
	res.Passed = res.MatchedAt > 0
	return res
}

// runNegative passes unless the search panics.
func (v *Validator) runNegative(ctx context.Context, spec QuerySpec) (res QueryResult) {
	res = QueryResult{Spec: spec}
	defer func() {
		if p := recover(); p != nil {
			res.Passed = false
			res.Error = fmt.Sprintf("panic: %v", p)
		}
	}()

	start := time.Now()
	results, err := v.searcher.Search(ctx, spec.Query, v.opts)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
	}
	for _, r := range results {
		res.TopResults = append(res.TopResults, r.Title)
	}
	res.Passed = true
	return res
}

// RunAll executes every query in s.
func (v *Validator) RunAll(ctx context.Context, s *Suite) *Report {
	rep := &Report{Timestamp: time.Now()}

	for _, spec := range s.Queries {
		qr := v.RunQuery(ctx, spec)
		rep.Queries = append(rep.Queries, qr)
		rep.Total++
		if qr.Passed {
			rep.Passed++
		}
	}
	for _, spec := range s.Negative {
		qr := v.runNegative(ctx, spec)
		rep.Negative = append(rep.Negative, qr)
		rep.NegTotal++
		if qr.Passed {
			rep.NegPassed++
		}
	}
	return rep
}

func firstMatch(titles, expected []string) int {
	for i, title := range titles {
		for _, want := range expected {
			if strings.EqualFold(strings.TrimSpace(title), strings.TrimSpace(want)) {
				return i + 1
			}
		}
	}
	return 0
}
