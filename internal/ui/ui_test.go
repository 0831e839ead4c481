package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_Names(t *testing.T) {
	assert.Equal(t, "Embedding", StageEmbedding.String())
	assert.Equal(t, "SAVE", StageSaving.Icon())
	assert.Equal(t, "Unknown", Stage(99).String())
}

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	r := NewRenderer(Config{Output: &bytes.Buffer{}})
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(Config{Output: &bytes.Buffer{}})
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestIsTTY_NonFile(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

// =============================================================================
// PlainRenderer
// =============================================================================

func TestPlainRenderer_Progress(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	r.UpdateProgress(ProgressEvent{Stage: StageLoading, Message: "reading movies.csv"})
	r.UpdateProgress(ProgressEvent{Stage: StageEmbedding, Current: 64, Total: 128, Message: "batch 1"})
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing})

	assert.Equal(t, "[LOAD] reading movies.csv\n[EMBED] 64/128 - batch 1\n", buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	r.Complete(CompletionStats{
		Items:      1200,
		Skipped:    3,
		Dimensions: 384,
		Model:      "nomic-embed-text",
		Backend:    "flat",
		Version:    "abc",
		Duration:   2 * time.Second,
		Stages:     StageTimings{Embed: time.Second},
	})

	out := buf.String()
	assert.Contains(t, out, "Complete: 1200 items indexed in 2s (3 rows skipped)")
	assert.Contains(t, out, "1200.0 items/sec")
	assert.Contains(t, out, "Model: nomic-embed-text (384 dims), backend flat, version abc")
}

// =============================================================================
// ProgressTracker
// =============================================================================

func TestProgressTracker_SetStageResets(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageEmbedding, 10)
	p.Update(4, "batch")

	st := p.Stats()
	assert.Equal(t, StageEmbedding, st.Stage)
	assert.InDelta(t, 0.4, st.Progress, 1e-9)
	assert.Equal(t, "batch", st.Message)

	p.SetStage(StageIndexing, 0)
	st = p.Stats()
	assert.Zero(t, st.Current)
	assert.Zero(t, st.Progress)
	assert.Empty(t, st.Message)
}

func TestProgressTracker_ProgressIsCapped(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageEmbedding, 10)
	p.Update(15, "")

	st := p.Stats()
	assert.Equal(t, 1.0, st.Progress)
	assert.Zero(t, st.ETA)
}

// =============================================================================
// TUI model
// =============================================================================

func TestBuildModel_ViewShowsStagesAndCounts(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 200)
	tracker.Update(50, "")
	m := newBuildModel(tracker, "")
	m.styles = NoColorStyles()

	view := m.View()

	for _, want := range []string{"CineSphere Index", "Loading", "Embedding", "Indexing", "Saving", "50 / 200 items"} {
		assert.Contains(t, view, want)
	}
}

func TestBuildModel_CompleteQuits(t *testing.T) {
	m := newBuildModel(NewProgressTracker(), "movies")
	m.styles = NoColorStyles()

	_, cmd := m.Update(completeMsg(CompletionStats{Items: 7, Model: "static-256", Backend: "hnsw", Skipped: 2}))

	require.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Index built")
	assert.Contains(t, view, "hnsw")
	assert.Contains(t, view, "2 rows skipped")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "3m", formatDuration(3*time.Minute))
	assert.Equal(t, "3m 20s", formatDuration(200*time.Second))
	assert.Equal(t, "1h 5m", formatDuration(65*time.Minute))
}
