package preflight

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/cinesphere/internal/catalog"
	"github.com/Aman-CERP/cinesphere/internal/embed"
	"github.com/Aman-CERP/cinesphere/internal/index"
)

const moviesCSV = `id,title,plot,genres,keywords,year,rating,popularity
1,Love Boat,Two strangers fall in love during a long voyage on a luxury cruise ship.,Romance,"cruise, ship",1999,7.0,30
2,Deep Blue,A documentary following whales across every ocean on the planet.,Documentary,"ocean, whale",2004,8.5,40
`

func newTarget(t *testing.T) Target {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "movies.csv")
	require.NoError(t, os.WriteFile(path, []byte(moviesCSV), 0o644))
	return Target{Catalog: path, ArtifactDir: filepath.Join(dir, "artifacts")}
}

func build(t *testing.T, e embed.Embedder, tgt Target) {
	t.Helper()
	cat, err := catalog.Load(tgt.Catalog)
	require.NoError(t, err)
	b, err := index.NewBuilder(e, index.BuilderConfig{Dir: tgt.ArtifactDir, BatchSize: 2})
	require.NoError(t, err)
	_, err = b.Build(context.Background(), cat)
	require.NoError(t, err)
}

func byName(results []CheckResult, name string) CheckResult {
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	return CheckResult{}
}

// =============================================================================
// Status
// =============================================================================

func TestCheckStatus_String(t *testing.T) {
	assert.Equal(t, "PASS", StatusPass.String())
	assert.Equal(t, "WARN", StatusWarn.String())
	assert.Equal(t, "FAIL", StatusFail.String())
	assert.Equal(t, "UNKNOWN", CheckStatus(9).String())
}

func TestCheckResult_JSONStatusIsName(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "catalog", Status: StatusWarn})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"WARN"`)
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		want    string
	}{
		{"all pass", []CheckResult{{Status: StatusPass, Required: true}}, "ready"},
		{"optional warn", []CheckResult{{Status: StatusPass}, {Status: StatusWarn}}, "ready_with_warnings"},
		{"optional fail", []CheckResult{{Status: StatusFail}}, "ready_with_warnings"},
		{"required fail", []CheckResult{{Status: StatusWarn}, {Status: StatusFail, Required: true}}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.results))
			assert.Equal(t, tt.want == "failed", HasCriticalFailures(tt.results))
		})
	}
}

// =============================================================================
// Checks
// =============================================================================

func TestRunAll_BeforeIndexing(t *testing.T) {
	// Given a project with a catalog but no artifacts
	tgt := newTarget(t)
	c := New(WithEmbedder(embed.NewStaticEmbedder(16)))

	// When running every check
	results := c.RunAll(context.Background(), tgt)

	// Then the catalog and embedder pass and the artifacts only warn
	assert.Equal(t, StatusPass, byName(results, "catalog").Status)
	assert.Equal(t, "2 items", byName(results, "catalog").Message)
	assert.Equal(t, StatusPass, byName(results, "artifact_dir").Status)
	assert.Equal(t, StatusPass, byName(results, "embedder").Status)
	assert.Equal(t, "static-16 (16 dimensions)", byName(results, "embedder").Message)
	art := byName(results, "artifacts")
	assert.Equal(t, StatusWarn, art.Status)
	assert.False(t, art.IsCritical())
	assert.DirExists(t, tgt.ArtifactDir)
}

func TestCheckCatalog_Missing(t *testing.T) {
	cat, r := New().CheckCatalog(Target{Catalog: filepath.Join(t.TempDir(), "nope.csv")})

	assert.Nil(t, cat)
	assert.Equal(t, StatusFail, r.Status)
	assert.True(t, r.IsCritical())
}

func TestCheckEmbedder(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		r := New(WithEmbedderError(assert.AnError)).CheckEmbedder(context.Background())
		assert.Equal(t, StatusFail, r.Status)
		assert.Equal(t, assert.AnError.Error(), r.Message)
	})

	t.Run("closed", func(t *testing.T) {
		e := embed.NewStaticEmbedder(8)
		require.NoError(t, e.Close())
		r := New(WithEmbedder(e)).CheckEmbedder(context.Background())
		assert.Equal(t, StatusFail, r.Status)
	})
}

func TestCheckArtifacts(t *testing.T) {
	// Given artifacts built from the catalog
	tgt := newTarget(t)
	e := embed.NewStaticEmbedder(16)
	build(t, e, tgt)
	cat, _ := New().CheckCatalog(tgt)

	t.Run("current", func(t *testing.T) {
		r := New(WithEmbedder(e)).CheckArtifacts(tgt.ArtifactDir, cat)
		assert.Equal(t, StatusPass, r.Status)
		assert.Contains(t, r.Message, "2 items")
	})

	t.Run("model changed", func(t *testing.T) {
		r := New(WithEmbedder(embed.NewStaticEmbedder(32))).CheckArtifacts(tgt.ArtifactDir, cat)
		assert.Equal(t, StatusWarn, r.Status)
		assert.Contains(t, r.Message, "static-32")
	})

	t.Run("catalog changed", func(t *testing.T) {
		require.NoError(t, os.WriteFile(tgt.Catalog, []byte(moviesCSV+"3,Extra,Another plot long enough to keep around.,Drama,,2001,6.0,3\n"), 0o644))
		edited, r := New().CheckCatalog(tgt)
		require.Equal(t, StatusPass, r.Status)

		r = New(WithEmbedder(e)).CheckArtifacts(tgt.ArtifactDir, edited)
		assert.Equal(t, StatusWarn, r.Status)
		assert.Contains(t, r.Message, "stale")
	})
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "100.0 MB", FormatBytes(MinDiskSpaceBytes))
	assert.Equal(t, "2.0 GB", FormatBytes(2<<30))
}
