package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/cinesphere/internal/catalog"
	"github.com/Aman-CERP/cinesphere/internal/embed"
	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/search"
	"github.com/Aman-CERP/cinesphere/internal/store"
	"github.com/Aman-CERP/cinesphere/internal/ui"
)

const moviesCSV = `id,title,plot,genres,keywords,year,rating,popularity
1,Love Boat,Two strangers fall in love during a long voyage on a luxury cruise ship.,Romance,"cruise, ship, love",1999,7.0,30
2,Deep Blue,A documentary following whales across every ocean on the planet.,Documentary,"ocean, whale",2004,8.5,40
3,Iron Front,Soldiers hold a bridge against overwhelming odds in the final winter of the war.,"War, Drama","battle, soldier",1977,6.9,12
4,Ghost Manor,A family moves into a haunted house and the old mansion wakes up.,Horror,"ghost, mansion",2012,5.9,22
5,Short,Tiny.,Comedy,,2020,5.0,1
`

// writeCatalog writes moviesCSV to dir and returns its path.
func writeCatalog(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "movies.csv")
	require.NoError(t, os.WriteFile(path, []byte(moviesCSV), 0o644))
	return path
}

func loadTestCatalog(t *testing.T, opts ...catalog.LoadOption) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Read(strings.NewReader(moviesCSV), opts...)
	require.NoError(t, err)
	return cat
}

func newTestBuilder(t *testing.T, e embed.Embedder, cfg BuilderConfig, opts ...BuilderOption) *Builder {
	t.Helper()
	b, err := NewBuilder(e, cfg, opts...)
	require.NoError(t, err)
	return b
}

// recordingRenderer keeps every event it receives.
type recordingRenderer struct {
	mu       sync.Mutex
	events   []ui.ProgressEvent
	complete *ui.CompletionStats
}

func (r *recordingRenderer) Start(context.Context) error { return nil }
func (r *recordingRenderer) Stop() error                 { return nil }

func (r *recordingRenderer) UpdateProgress(e ui.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingRenderer) Complete(s ui.CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = &s
}

// failingEmbedder fails every batch.
type failingEmbedder struct {
	*embed.StaticEmbedder
	err error
}

func (f *failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, f.err
}

// =============================================================================
// Build
// =============================================================================

func TestBuilder_Build_WritesArtifacts(t *testing.T) {
	// Given a catalog and a static embedder
	dir := t.TempDir()
	e := embed.NewStaticEmbedder(32)
	rec := &recordingRenderer{}
	b := newTestBuilder(t, e, BuilderConfig{Dir: dir, BatchSize: 2}, WithRenderer(rec))

	// When building
	res, err := b.Build(context.Background(), loadTestCatalog(t))

	// Then the matrix, index blob and manifest exist and agree
	require.NoError(t, err)
	assert.False(t, res.UpToDate)

	m := res.Manifest
	assert.Equal(t, 5, m.Count)
	assert.Equal(t, 32, m.Dimensions)
	assert.Equal(t, "static-32", m.Model)
	assert.Equal(t, store.BackendFlat, m.Backend)
	assert.NotEmpty(t, m.Version)
	assert.NotEmpty(t, m.CatalogSHA256)

	matrix, err := store.LoadMatrix(filepath.Join(dir, EmbeddingsFileName))
	require.NoError(t, err)
	assert.Len(t, matrix.Rows, 5)
	assert.Equal(t, 32, matrix.Cols)

	onDisk, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, m.Version, onDisk.Version)

	_, err = os.Stat(filepath.Join(dir, "index.flat"))
	assert.NoError(t, err)
}

func TestBuilder_Build_VectorsFollowCatalogOrder(t *testing.T) {
	// Given several concurrent batches of one item each
	dir := t.TempDir()
	e := embed.NewStaticEmbedder(16)
	cat := loadTestCatalog(t)
	b := newTestBuilder(t, e, BuilderConfig{Dir: dir, BatchSize: 1, Concurrency: 4})

	// When building
	_, err := b.Build(context.Background(), cat)
	require.NoError(t, err)

	// Then row i of the matrix is the embedding of item i
	matrix, err := store.LoadMatrix(filepath.Join(dir, EmbeddingsFileName))
	require.NoError(t, err)
	for i, text := range cat.DocumentTexts() {
		want, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, want, matrix.Rows[i], "row %d", i)
	}
}

func TestBuilder_Build_ReportsStages(t *testing.T) {
	rec := &recordingRenderer{}
	b := newTestBuilder(t, embed.NewStaticEmbedder(8), BuilderConfig{Dir: t.TempDir(), BatchSize: 2}, WithRenderer(rec))

	_, err := b.Build(context.Background(), loadTestCatalog(t))
	require.NoError(t, err)

	var stages []ui.Stage
	lastEmbed := ui.ProgressEvent{}
	for _, e := range rec.events {
		if len(stages) == 0 || stages[len(stages)-1] != e.Stage {
			stages = append(stages, e.Stage)
		}
		if e.Stage == ui.StageEmbedding {
			lastEmbed = e
		}
	}
	assert.Equal(t, []ui.Stage{ui.StageLoading, ui.StageEmbedding, ui.StageIndexing, ui.StageSaving}, stages)
	assert.Equal(t, 5, lastEmbed.Current)
	assert.Equal(t, 5, lastEmbed.Total)

	require.NotNil(t, rec.complete)
	assert.Equal(t, 5, rec.complete.Items)
	assert.Equal(t, "flat", rec.complete.Backend)
}

func TestBuilder_Build_SkipsWhenUpToDate(t *testing.T) {
	// Given artifacts built from this catalog
	dir := t.TempDir()
	e := embed.NewStaticEmbedder(8)
	first, err := newTestBuilder(t, e, BuilderConfig{Dir: dir}).Build(context.Background(), loadTestCatalog(t))
	require.NoError(t, err)

	// When building again without and with --force
	again, err := newTestBuilder(t, e, BuilderConfig{Dir: dir}).Build(context.Background(), loadTestCatalog(t))
	require.NoError(t, err)
	forced, err := newTestBuilder(t, e, BuilderConfig{Dir: dir, Force: true}).Build(context.Background(), loadTestCatalog(t))
	require.NoError(t, err)

	// Then only the forced build produced a new version
	assert.True(t, again.UpToDate)
	assert.Equal(t, first.Manifest.Version, again.Manifest.Version)
	assert.False(t, forced.UpToDate)
	assert.NotEqual(t, first.Manifest.Version, forced.Manifest.Version)
}

func TestBuilder_Build_RebuildsOnModelChange(t *testing.T) {
	dir := t.TempDir()
	_, err := newTestBuilder(t, embed.NewStaticEmbedder(8), BuilderConfig{Dir: dir}).Build(context.Background(), loadTestCatalog(t))
	require.NoError(t, err)

	res, err := newTestBuilder(t, embed.NewStaticEmbedder(16), BuilderConfig{Dir: dir}).Build(context.Background(), loadTestCatalog(t))

	require.NoError(t, err)
	assert.False(t, res.UpToDate)
	assert.Equal(t, 16, res.Manifest.Dimensions)
}

func TestBuilder_Build_Locked(t *testing.T) {
	// Given another build holding the directory
	dir := t.TempDir()
	held := NewFileLock(dir)
	require.NoError(t, held.Lock())
	defer func() { _ = held.Unlock() }()

	// When building
	_, err := newTestBuilder(t, embed.NewStaticEmbedder(8), BuilderConfig{Dir: dir}).Build(context.Background(), loadTestCatalog(t))

	// Then the build refuses to run
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeArtifactsLocked, cerrors.GetCode(err))
}

func TestBuilder_Build_EmbeddingFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	e := &failingEmbedder{StaticEmbedder: embed.NewStaticEmbedder(8), err: context.DeadlineExceeded}

	_, err := newTestBuilder(t, e, BuilderConfig{Dir: dir}).Build(context.Background(), loadTestCatalog(t))

	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeEmbeddingFailed, cerrors.GetCode(err))
	assert.True(t, cerrors.IsRetryable(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	_, err = os.Stat(filepath.Join(dir, ManifestFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestBuilder_Build_EmptyCatalog(t *testing.T) {
	_, err := newTestBuilder(t, embed.NewStaticEmbedder(8), BuilderConfig{Dir: t.TempDir()}).
		Build(context.Background(), catalog.New(nil))

	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeCatalogInvalid, cerrors.GetCode(err))
}

func TestNewBuilder_Validation(t *testing.T) {
	_, err := NewBuilder(nil, BuilderConfig{Dir: "x"})
	assert.Error(t, err)

	_, err = NewBuilder(embed.NewStaticEmbedder(8), BuilderConfig{})
	assert.Error(t, err)
}

// =============================================================================
// Load
// =============================================================================

func TestLoadSnapshot_RoundTripSearch(t *testing.T) {
	// Given artifacts built from a catalog file
	dir := t.TempDir()
	catPath := writeCatalog(t, dir)
	artifacts := filepath.Join(dir, "artifacts")
	e := embed.NewStaticEmbedder(64)

	cat, err := catalog.Load(catPath)
	require.NoError(t, err)
	built, err := newTestBuilder(t, e, BuilderConfig{Dir: artifacts}).Build(context.Background(), cat)
	require.NoError(t, err)

	// When loading them into an engine
	cfg := LoaderConfig{Dir: artifacts, CatalogPath: catPath, Model: e.ModelName(), Dimensions: e.Dimensions()}
	snap, err := LoadSnapshot(context.Background(), cfg)
	require.NoError(t, err)

	engine, err := search.NewEngine(e)
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()
	require.NoError(t, engine.Load(snap))

	// Then the snapshot carries the build identity and answers queries
	assert.Equal(t, built.Manifest.Version, snap.Info.Version)
	assert.Equal(t, "flat", snap.Info.Backend)

	results, err := engine.Search(context.Background(), "haunted mansion ghost", search.SearchOptions{TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Ghost Manor", results[0].Item.Title)
}

func TestLoadSnapshot_HonoursCleanedManifest(t *testing.T) {
	// Given a build over the cleaned catalog (one short-plot row dropped)
	dir := t.TempDir()
	catPath := writeCatalog(t, dir)
	e := embed.NewStaticEmbedder(8)
	cat, err := catalog.Load(catPath, catalog.WithCleaning())
	require.NoError(t, err)
	require.Equal(t, 4, cat.Len())

	_, err = newTestBuilder(t, e, BuilderConfig{Dir: dir, Cleaned: true}).Build(context.Background(), cat)
	require.NoError(t, err)

	// When loading from the raw file path
	snap, err := LoadSnapshot(context.Background(), LoaderConfig{Dir: dir, CatalogPath: catPath})

	// Then the catalog is cleaned the same way and lines up with the index
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Catalog.Len())
	_ = snap.Index.Close()
}

func TestLoad_RejectsMismatchedArtifacts(t *testing.T) {
	dir := t.TempDir()
	e := embed.NewStaticEmbedder(8)
	_, err := newTestBuilder(t, e, BuilderConfig{Dir: dir}).Build(context.Background(), loadTestCatalog(t))
	require.NoError(t, err)

	tests := []struct {
		name     string
		cfg      LoaderConfig
		cat      *catalog.Catalog
		wantCode string
	}{
		{
			name:     "catalog length differs",
			cfg:      LoaderConfig{Dir: dir},
			cat:      loadTestCatalog(t, catalog.WithCleaning()),
			wantCode: cerrors.ErrCodeCorruptIndex,
		},
		{
			name:     "different model",
			cfg:      LoaderConfig{Dir: dir, Model: "nomic-embed-text"},
			cat:      loadTestCatalog(t),
			wantCode: cerrors.ErrCodeCorruptIndex,
		},
		{
			name:     "different dimension",
			cfg:      LoaderConfig{Dir: dir, Dimensions: 768},
			cat:      loadTestCatalog(t),
			wantCode: cerrors.ErrCodeDimensionMismatch,
		},
		{
			name:     "nothing built",
			cfg:      LoaderConfig{Dir: t.TempDir()},
			cat:      loadTestCatalog(t),
			wantCode: cerrors.ErrCodeIndexNotLoaded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.cfg, tt.cat)

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, cerrors.GetCode(err))
		})
	}
}

func TestLoad_RejectsChangedCatalog(t *testing.T) {
	dir := t.TempDir()
	e := embed.NewStaticEmbedder(8)
	_, err := newTestBuilder(t, e, BuilderConfig{Dir: dir}).Build(context.Background(), loadTestCatalog(t))
	require.NoError(t, err)

	edited, err := catalog.Read(strings.NewReader(strings.Replace(moviesCSV, "Love Boat", "Love Barge", 1)))
	require.NoError(t, err)

	_, err = Load(context.Background(), LoaderConfig{Dir: dir}, edited)

	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeCorruptIndex, cerrors.GetCode(err))
}

func TestLoad_MissingIndexBlob(t *testing.T) {
	dir := t.TempDir()
	_, err := newTestBuilder(t, embed.NewStaticEmbedder(8), BuilderConfig{Dir: dir}).Build(context.Background(), loadTestCatalog(t))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "index.flat")))

	_, err = Load(context.Background(), LoaderConfig{Dir: dir}, loadTestCatalog(t))

	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeCorruptIndex, cerrors.GetCode(err))
}

func TestNewLoader_FeedsEngineReload(t *testing.T) {
	// Given an engine whose loader reads the artifact directory
	dir := t.TempDir()
	catPath := writeCatalog(t, dir)
	e := embed.NewStaticEmbedder(8)
	cat, err := catalog.Load(catPath)
	require.NoError(t, err)
	built, err := newTestBuilder(t, e, BuilderConfig{Dir: dir}).Build(context.Background(), cat)
	require.NoError(t, err)

	engine, err := search.NewEngine(e, search.WithLoader(NewLoader(LoaderConfig{Dir: dir, CatalogPath: catPath})))
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()

	// When reloading
	require.NoError(t, engine.Reload(context.Background()))

	// Then the engine reports the built version
	h := engine.Health()
	assert.True(t, h.Loaded)
	assert.Equal(t, 5, h.Items)
	assert.Equal(t, built.Manifest.Version, h.Version)
}
