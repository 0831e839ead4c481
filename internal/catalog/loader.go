package catalog

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
)

// Column names of the catalog file. Order in the file is free.
const (
	ColID         = "id"
	ColTitle      = "title"
	ColPlot       = "plot"
	ColGenres     = "genres"
	ColKeywords   = "keywords"
	ColYear       = "year"
	ColRating     = "rating"
	ColPopularity = "popularity"
	ColPosterPath = "poster_path"
)

var requiredColumns = []string{
	ColID, ColTitle, ColPlot, ColGenres, ColKeywords, ColYear, ColRating, ColPopularity,
}

// MinCleanPlotLength is the plot length (in characters) a row must exceed
// to survive cleaning.
const MinCleanPlotLength = 20

// LoadError describes a rejected catalog row.
type LoadError struct {
	// Line is the 1-based line of the file where the row starts.
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *LoadError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("catalog header: column %q %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("catalog line %d: field %q %s (value %q)", e.Line, e.Field, e.Reason, e.Value)
}

// LoadOption configures Load and Read.
type LoadOption func(*loadOptions)

type loadOptions struct {
	clean  bool
	logger *slog.Logger
}

// WithCleaning drops rows whose plot is too short and rows repeating an
// earlier id, instead of rejecting duplicates.
func WithCleaning() LoadOption {
	return func(o *loadOptions) { o.clean = true }
}

// WithLogger sets the logger used to report dropped rows.
func WithLogger(l *slog.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = l }
}

// Load reads a catalog CSV file.
func Load(path string, opts ...LoadOption) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		code := cerrors.ErrCodeFileNotFound
		if os.IsPermission(err) {
			code = cerrors.ErrCodeFilePermission
		}
		return nil, cerrors.New(code, fmt.Sprintf("open catalog %s", path), err).
			WithSuggestion("check paths.catalog in your config or CINESPHERE_CATALOG")
	}
	defer func() { _ = f.Close() }()

	return Read(f, opts...)
}

// Read parses a catalog from r. Every rejected row surfaces as a
// CineError with code ERR_207_CATALOG_INVALID wrapping a *LoadError.
func Read(r io.Reader, opts ...LoadOption) (*Catalog, error) {
	o := loadOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	h := sha256.New()
	cr := csv.NewReader(io.TeeReader(r, h))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, invalid(&LoadError{Field: ColID, Reason: "missing: file is empty"})
	}
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeCatalogInvalid, "read catalog header", err)
	}

	cols, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var (
		items   []Item
		seen    = make(map[int64]int)
		skipped int
	)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cerrors.New(cerrors.ErrCodeCatalogInvalid, "read catalog row", err)
		}
		line, _ := cr.FieldPos(0)

		item, lerr := parseRow(record, cols, line)
		if lerr != nil {
			return nil, invalid(lerr)
		}

		if first, dup := seen[item.ID]; dup {
			if !o.clean {
				return nil, invalid(&LoadError{
					Line: line, Field: ColID, Value: strconv.FormatInt(item.ID, 10),
					Reason: fmt.Sprintf("duplicates line %d", first),
				})
			}
			skipped++
			continue
		}
		if o.clean && utf8.RuneCountInString(item.Plot) <= MinCleanPlotLength {
			skipped++
			continue
		}

		seen[item.ID] = line
		items = append(items, item)
	}

	if skipped > 0 {
		o.logger.Debug("catalog_rows_dropped", slog.Int("count", skipped))
	}

	return &Catalog{
		items:    items,
		checksum: hex.EncodeToString(h.Sum(nil)),
		skipped:  skipped,
	}, nil
}

func invalid(le *LoadError) error {
	e := cerrors.New(cerrors.ErrCodeCatalogInvalid, le.Error(), le).
		WithDetail("field", le.Field).
		WithSuggestion("fix or remove the offending row, or rebuild the catalog")
	if le.Line > 0 {
		e.WithDetail("line", strconv.Itoa(le.Line))
	}
	return e
}

func indexColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		cols[name] = i
	}
	for _, req := range requiredColumns {
		if _, ok := cols[req]; !ok {
			return nil, invalid(&LoadError{Field: req, Reason: "is missing"})
		}
	}
	return cols, nil
}

func parseRow(record []string, cols map[string]int, line int) (Item, *LoadError) {
	get := func(col string) string {
		i, ok := cols[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	fail := func(col, reason string) *LoadError {
		return &LoadError{Line: line, Field: col, Value: get(col), Reason: reason}
	}

	var item Item

	id, err := strconv.ParseInt(get(ColID), 10, 64)
	if err != nil {
		return item, fail(ColID, "is not an integer")
	}
	item.ID = id

	if item.Title = get(ColTitle); item.Title == "" {
		return item, fail(ColTitle, "is empty")
	}

	rating, ok := parseNumber(get(ColRating))
	if !ok {
		return item, fail(ColRating, "is not a number")
	}
	if rating < 0 || rating > 10 {
		return item, fail(ColRating, "is outside 0-10")
	}
	item.Rating = rating

	pop, ok := parseNumber(get(ColPopularity))
	if !ok {
		return item, fail(ColPopularity, "is not a number")
	}
	if pop < 0 {
		return item, fail(ColPopularity, "is negative")
	}
	item.Popularity = pop

	item.Year = get(ColYear)
	item.Plot = get(ColPlot)
	item.Genres = splitList(get(ColGenres))
	item.Keywords = splitList(get(ColKeywords))
	item.PosterPath = get(ColPosterPath)

	return item, nil
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
