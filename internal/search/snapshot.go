package search

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/cinesphere/internal/catalog"
	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/store"
)

// SnapshotInfo identifies the build a snapshot came from.
type SnapshotInfo struct {
	Version string
	Model   string
	Backend string
	BuiltAt time.Time
}

// Snapshot is an immutable (catalog, index) pair. Ordinal i of the index is
// row i of the catalog. The engine swaps whole snapshots; a retired
// snapshot's index is closed once the last search using it returns.
type Snapshot struct {
	Catalog *catalog.Catalog
	Index   store.VectorIndex
	Info    SnapshotInfo

	retriever *CandidateRetriever
	refs      atomic.Int64
	retired   atomic.Bool
	closed    atomic.Bool
}

// NewSnapshot pairs cat with idx. The catalog length must equal the index
// vector count.
func NewSnapshot(cat *catalog.Catalog, idx store.VectorIndex, info SnapshotInfo) (*Snapshot, error) {
	if cat == nil || idx == nil {
		return nil, fmt.Errorf("%w: snapshot needs a catalog and an index", ErrNilDependency)
	}
	if cat.Len() != idx.Count() {
		return nil, cerrors.New(cerrors.ErrCodeCorruptIndex,
			fmt.Sprintf("catalog has %d items but the index holds %d vectors", cat.Len(), idx.Count()), nil).
			WithDetail("catalog_items", fmt.Sprint(cat.Len())).
			WithDetail("index_vectors", fmt.Sprint(idx.Count())).
			WithSuggestion("Rebuild the artifacts: cinesphere index --force")
	}
	return &Snapshot{
		Catalog:   cat,
		Index:     idx,
		Info:      info,
		retriever: NewCandidateRetriever(idx),
	}, nil
}

// acquire pins the snapshot for one search. It fails if the snapshot was
// retired in the meantime, in which case the caller reloads the pointer.
func (s *Snapshot) acquire() bool {
	s.refs.Add(1)
	if s.retired.Load() {
		s.release()
		return false
	}
	return true
}

func (s *Snapshot) release() {
	if s.refs.Add(-1) == 0 && s.retired.Load() {
		s.closeIndex()
	}
}

// supersede tells an index with external storage that a different build
// replaced it. Reinstalling the same build leaves the storage alone.
func (s *Snapshot) supersede(next *Snapshot) {
	if next == nil || next.Index == s.Index || next.Info.Version == s.Info.Version {
		return
	}
	if r, ok := s.Index.(store.Retirer); ok {
		r.Retire()
	}
}

// retire marks the snapshot replaced and closes it if nothing holds it.
func (s *Snapshot) retire() {
	s.retired.Store(true)
	if s.refs.Load() == 0 {
		s.closeIndex()
	}
}

func (s *Snapshot) closeIndex() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if err := s.Index.Close(); err != nil {
		slog.Warn("failed to close retired index",
			slog.String("version", s.Info.Version),
			slog.String("error", err.Error()))
	}
}
