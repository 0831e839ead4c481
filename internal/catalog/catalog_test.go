package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
)

const validCSV = `id,title,plot,genres,keywords,year,rating,popularity,poster_path
1,Titanic,"A seventeen-year-old aristocrat falls in love with a kind but poor artist aboard the luxurious, ill-fated R.M.S. Titanic.","Drama, Romance","ship, iceberg, love",1997,7.9,120.5,/t.jpg
2,Ocean Giants,A documentary about the largest creatures of the sea and their migrations.,Documentary,"whale, ocean",2011,8.8,3.2,
`

// ============================================================================
// Loading
// ============================================================================

func TestRead_ParsesItemsInOrder(t *testing.T) {
	// Given: a well-formed catalog
	// When: reading it
	c, err := Read(strings.NewReader(validCSV))

	// Then: both rows are loaded in file order with list fields split
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	first := c.At(0)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, "Titanic", first.Title)
	assert.Equal(t, []string{"Drama", "Romance"}, first.Genres)
	assert.Equal(t, "Drama, Romance", first.GenreString())
	assert.Equal(t, []string{"ship", "iceberg", "love"}, first.Keywords)
	assert.Equal(t, "1997", first.Year)
	assert.InDelta(t, 7.9, first.Rating, 1e-9)
	assert.InDelta(t, 120.5, first.Popularity, 1e-9)
	assert.Equal(t, "/t.jpg", first.PosterPath)

	assert.Empty(t, c.At(1).PosterPath)
	assert.NotEmpty(t, c.Checksum())
}

func TestRead_ColumnOrderIsFree(t *testing.T) {
	data := "rating,popularity,year,keywords,genres,plot,title,id\n6.5,10,2001,,Comedy,,Shrek,7\n"

	c, err := Read(strings.NewReader(data))

	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, int64(7), c.At(0).ID)
	assert.Nil(t, c.At(0).Keywords)
}

func TestRead_RejectsInvalidRows(t *testing.T) {
	header := "id,title,plot,genres,keywords,year,rating,popularity\n"
	tests := []struct {
		name  string
		row   string
		field string
	}{
		{"non-integer id", "abc,T,p,g,k,2000,5,1", ColID},
		{"empty title", "1,,p,g,k,2000,5,1", ColTitle},
		{"rating not numeric", "1,T,p,g,k,2000,good,1", ColRating},
		{"rating out of range", "1,T,p,g,k,2000,11,1", ColRating},
		{"rating missing", "1,T,p,g,k,2000,,1", ColRating},
		{"negative popularity", "1,T,p,g,k,2000,5,-2", ColPopularity},
		{"nan popularity", "1,T,p,g,k,2000,5,NaN", ColPopularity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a header, one good row and one bad row on line 3
			data := header + "9,Good,p,g,k,2000,5,1\n" + tt.row + "\n"

			// When: reading
			_, err := Read(strings.NewReader(data))

			// Then: the error names the line and field
			require.Error(t, err)
			assert.Equal(t, cerrors.ErrCodeCatalogInvalid, cerrors.GetCode(err))

			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, 3, le.Line)
			assert.Equal(t, tt.field, le.Field)

			var ce *cerrors.CineError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "3", ce.Details["line"])
			assert.Equal(t, tt.field, ce.Details["field"])
		})
	}
}

func TestRead_RejectsMissingColumn(t *testing.T) {
	_, err := Read(strings.NewReader("id,title,plot,genres,keywords,year,rating\n1,T,p,g,k,2000,5\n"))

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ColPopularity, le.Field)
	assert.Equal(t, 0, le.Line)
}

func TestRead_RejectsDuplicateIDs(t *testing.T) {
	data := "id,title,plot,genres,keywords,year,rating,popularity\n1,A,p,g,k,2000,5,1\n1,B,p,g,k,2000,5,1\n"

	_, err := Read(strings.NewReader(data))

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ColID, le.Field)
	assert.Contains(t, le.Reason, "line 2")
}

func TestRead_WithCleaning_DropsShortPlotsAndDuplicates(t *testing.T) {
	// Given: a short plot, a duplicate and a valid row
	long := "A long enough synopsis to survive cleaning."
	data := "id,title,plot,genres,keywords,year,rating,popularity\n" +
		"1,Short,tiny,g,k,2000,5,1\n" +
		"2,Keep,\"" + long + "\",g,k,2000,5,1\n" +
		"2,Dup,\"" + long + "\",g,k,2000,5,1\n" +
		"1,Second,\"" + long + "\",g,k,2000,5,1\n"

	// When: reading with cleaning
	c, err := Read(strings.NewReader(data), WithCleaning())

	// Then: the short row is dropped before dedup, so id 1 survives from its later row
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	assert.Equal(t, "Keep", c.At(0).Title)
	assert.Equal(t, "Second", c.At(1).Title)
	assert.Equal(t, 2, c.Skipped())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Equal(t, cerrors.ErrCodeFileNotFound, cerrors.GetCode(err))
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movies.csv")
	require.NoError(t, os.WriteFile(path, []byte(validCSV), 0o644))

	a, err := Load(path)
	require.NoError(t, err)
	b, err := Read(strings.NewReader(validCSV))
	require.NoError(t, err)

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, b.Checksum(), a.Checksum())
}

func TestCatalog_ItemsReturnsCopy(t *testing.T) {
	c := New([]Item{{ID: 1, Title: "A"}})
	items := c.Items()
	items[0].Title = "changed"
	assert.Equal(t, "A", c.At(0).Title)

	var nilCatalog *Catalog
	assert.Equal(t, 0, nilCatalog.Len())
}

// ============================================================================
// Document text
// ============================================================================

func TestDocumentText_FullItem(t *testing.T) {
	it := Item{
		Title:    "Heat",
		Genres:   []string{"Crime", "Drama"},
		Keywords: []string{"heist"},
		Plot:     "A group of professional bank robbers.",
		Year:     "1995",
		Rating:   8,
	}

	want := "Heat Heat " +
		"Crime, Drama Crime, Drama Crime, Drama " +
		"heist heist heist heist " +
		"A group of professional bank robbers. " +
		"1995 film rated 8.0"

	assert.Equal(t, want, DocumentText(it))
}

func TestDocumentText_OmitsShortPlotAndMissingYear(t *testing.T) {
	it := Item{Title: "X", Plot: "too short", Rating: 7.25}
	assert.Equal(t, "X X", DocumentText(it))
}

func TestDocumentText_TruncatesPlotByCharacter(t *testing.T) {
	plot := strings.Repeat("é", 450)
	it := Item{Plot: plot}

	got := DocumentText(it)

	assert.Equal(t, maxPlotChars, len([]rune(got)))
}

func TestFormatRating(t *testing.T) {
	assert.Equal(t, "8.0", formatRating(8))
	assert.Equal(t, "7.3", formatRating(7.3))
	assert.Equal(t, "0.0", formatRating(0))
}

func TestCatalog_DocumentTexts(t *testing.T) {
	c := New([]Item{{Title: "A"}, {Title: "B"}})
	assert.Equal(t, []string{"A A", "B B"}, c.DocumentTexts())
}
