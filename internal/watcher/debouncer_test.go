package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(path string, op Operation) Event {
	return Event{Path: path, Operation: op, Timestamp: time.Now()}
}

func waitBatch(t *testing.T, d *Debouncer) []Event {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_SingleEventPassesThrough(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, nil)
	defer d.Stop()

	d.Add(ev("/a/manifest.yaml", OpCreate))

	batch := waitBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "/a/manifest.yaml", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_BurstBecomesOneBatch(t *testing.T) {
	// Given a debouncer and a burst of writes to one file
	d := NewDebouncer(80*time.Millisecond, nil)
	defer d.Stop()

	for range 5 {
		d.Add(ev("/a/manifest.yaml", OpModify))
		time.Sleep(10 * time.Millisecond)
	}

	// Then a single event comes out
	batch := waitBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"create then modify", []Operation{OpCreate, OpModify}, OpCreate},
		{"modify then delete", []Operation{OpModify, OpDelete}, OpDelete},
		{"delete then create", []Operation{OpDelete, OpCreate}, OpModify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(30*time.Millisecond, nil)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(ev("/a/movies.csv", op))
			}

			batch := waitBatch(t, d)
			require.Len(t, batch, 1)
			assert.Equal(t, tt.want, batch[0].Operation)
		})
	}
}

func TestDebouncer_CreateThenDeleteCancels(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, nil)
	defer d.Stop()

	d.Add(ev("/a/tmp", OpCreate))
	d.Add(ev("/a/tmp", OpDelete))

	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected batch %v", batch)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, nil)
	defer d.Stop()

	d.Add(ev("/b/movies.csv", OpModify))
	d.Add(ev("/a/manifest.yaml", OpCreate))

	batch := waitBatch(t, d)
	require.Len(t, batch, 2)
	assert.Equal(t, "/a/manifest.yaml", batch[0].Path)
	assert.Equal(t, "/b/movies.csv", batch[1].Path)
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour, nil)
	d.Add(ev("/a/x", OpCreate))

	d.Stop()
	d.Stop()
	d.Add(ev("/a/y", OpCreate))

	_, ok := <-d.Output()
	assert.False(t, ok)
}
