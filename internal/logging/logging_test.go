package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Setup
// =============================================================================

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given a file-only logger at info level
	path := filepath.Join(t.TempDir(), "logs", "cinesphere.log")
	logger, cleanup, err := Setup(Config{Level: "info", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)

	// When logging below and at the level
	logger.Debug("hidden")
	logger.Info("search_complete", slog.Int("results", 3))
	cleanup()

	// Then only the info record is in the file, as JSON
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")

	e := ParseLine(strings.TrimSpace(string(data)))
	assert.True(t, e.IsValid)
	assert.Equal(t, "INFO", e.Level)
	assert.Equal(t, "search_complete", e.Msg)
	assert.Equal(t, float64(3), e.Attrs["results"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestDefaultLogPath(t *testing.T) {
	assert.Equal(t, "cinesphere.log", filepath.Base(DefaultLogPath()))
	assert.Contains(t, DefaultLogPath(), ".cinesphere")
}

func TestFindLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")

	_, err := FindLogFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	got, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

// =============================================================================
// RotatingWriter
// =============================================================================

func TestRotatingWriter_Rotates(t *testing.T) {
	// Given a 1 MB writer keeping two old files
	path := filepath.Join(t.TempDir(), "cinesphere.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	w.SetSyncEachWrite(false)
	defer func() { _ = w.Close() }()

	// When writing four chunks just over half a megabyte each
	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for range 4 {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}

	// Then the live file plus .1 and .2 exist, and nothing older
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), info.Size())
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinesphere.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

// =============================================================================
// Viewer
// =============================================================================

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cinesphere.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func jsonLine(level, msg string) string {
	return fmt.Sprintf(`{"time":"2026-03-01T10:00:00.5Z","level":%q,"msg":%q,"query":"war"}`, level, msg)
}

func TestViewer_TailFiltersLevelAndPattern(t *testing.T) {
	path := writeLog(t,
		jsonLine("DEBUG", "embed_batch"),
		jsonLine("INFO", "search_complete"),
		jsonLine("WARN", "reload failed"),
		"not json",
	)

	v := NewViewer(ViewerConfig{Level: "info", NoColor: true}, &bytes.Buffer{})
	entries, err := v.Tail(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "search_complete", entries[0].Msg)
	assert.False(t, entries[2].IsValid)

	v = NewViewer(ViewerConfig{Pattern: regexp.MustCompile("reload"), NoColor: true}, &bytes.Buffer{})
	entries, err = v.Tail(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0].Level)
}

func TestViewer_TailLastN(t *testing.T) {
	path := writeLog(t, jsonLine("INFO", "a"), jsonLine("INFO", "b"), jsonLine("INFO", "c"))

	entries, err := NewViewer(ViewerConfig{}, &bytes.Buffer{}).Tail(path, 2)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Msg)
	assert.Equal(t, "c", entries[1].Msg)
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	got := v.FormatEntry(ParseLine(jsonLine("INFO", "search_complete")))

	assert.Equal(t, "10:00:00.500 INFO  search_complete query=war", got)
	assert.Equal(t, "plain", v.FormatEntry(ParseLine("plain")))
}

func TestViewer_Follow(t *testing.T) {
	// Given a follower on an existing log
	path := writeLog(t, jsonLine("INFO", "before"))
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, ch) }()
	time.Sleep(200 * time.Millisecond)

	// When a line is appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(jsonLine("INFO", "after") + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then only the new line is delivered
	select {
	case e := <-ch:
		assert.Equal(t, "after", e.Msg)
	case <-ctx.Done():
		t.Fatal("no entry delivered")
	}
	cancel()
	assert.NoError(t, <-done)
}
