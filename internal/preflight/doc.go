// Package preflight checks that a project can be indexed and searched
// before any work starts.
//
// The checks cover:
//   - the catalog parses
//   - the artifact directory is writable and has free space
//   - the embedding provider answers with vectors of the expected size
//   - the artifacts exist and match the catalog and model
//   - the process file descriptor limit
//
// Usage:
//
//	checker := preflight.New(preflight.WithEmbedder(e))
//	results := checker.RunAll(ctx, preflight.Target{Catalog: path, ArtifactDir: dir})
//	if preflight.HasCriticalFailures(results) {
//	    // refuse to continue
//	}
package preflight
