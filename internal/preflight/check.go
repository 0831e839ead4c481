package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/cinesphere/internal/catalog"
	"github.com/Aman-CERP/cinesphere/internal/embed"
	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/index"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON writes the status as its name.
func (s CheckStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// CheckResult holds the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a failed required check.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Target is the project under test.
type Target struct {
	Catalog     string
	ArtifactDir string

	// Clean loads the catalog the way `index --clean` does.
	Clean bool
}

// Checker runs the checks.
type Checker struct {
	embedder    embed.Embedder
	embedderErr error
	logger      *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedder sets the embedder to probe. Without one the embedder check
// fails.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) { c.embedder = e }
}

// WithEmbedderError records why no embedder could be created; the
// embedder check reports it.
func WithEmbedderError(err error) Option {
	return func(c *Checker) { c.embedderErr = err }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check in order.
func (c *Checker) RunAll(ctx context.Context, t Target) []CheckResult {
	cat, catResult := c.CheckCatalog(t)
	results := []CheckResult{
		catResult,
		c.CheckArtifactDir(t.ArtifactDir),
		c.CheckDiskSpace(t.ArtifactDir),
		c.CheckFileDescriptors(),
		c.CheckEmbedder(ctx),
		c.CheckArtifacts(t.ArtifactDir, cat),
	}
	for _, r := range results {
		c.logger.Debug("preflight_check",
			slog.String("name", r.Name),
			slog.String("status", r.Status.String()),
			slog.String("message", r.Message))
	}
	return results
}

// CheckCatalog loads the catalog. The catalog is returned for later
// checks and is nil on failure.
func (c *Checker) CheckCatalog(t Target) (*catalog.Catalog, CheckResult) {
	result := CheckResult{Name: "catalog", Required: true}

	var opts []catalog.LoadOption
	if t.Clean {
		opts = append(opts, catalog.WithCleaning())
	}
	cat, err := catalog.Load(t.Catalog, opts...)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		result.Details = t.Catalog
		return nil, result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d items", cat.Len())
	if cat.Skipped() > 0 {
		result.Message = fmt.Sprintf("%d items (%d dropped by cleaning)", cat.Len(), cat.Skipped())
	}
	result.Details = t.Catalog
	return cat, result
}

// CheckArtifactDir creates dir if needed and verifies a file can be
// written there.
func (c *Checker) CheckArtifactDir(dir string) CheckResult {
	result := CheckResult{Name: "artifact_dir", Required: true, Details: dir}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create: %v", err)
		return result
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	result.Status = StatusPass
	result.Message = "writable"
	return result
}

// CheckEmbedder embeds a probe text and verifies the vector size.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedder", Required: true}

	if c.embedder == nil {
		result.Status = StatusFail
		result.Message = "no embedder"
		if c.embedderErr != nil {
			result.Message = c.embedderErr.Error()
		}
		return result
	}
	result.Details = c.embedder.ModelName()

	vec, err := c.embedder.Embed(ctx, "a quiet film about the sea")
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	if len(vec) != c.embedder.Dimensions() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("returned %d dimensions, expected %d", len(vec), c.embedder.Dimensions())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dimensions)", c.embedder.ModelName(), len(vec))
	return result
}

// CheckArtifacts compares the manifest with the catalog and embedder.
// Missing or stale artifacts only warn: `cinesphere index` fixes them.
func (c *Checker) CheckArtifacts(dir string, cat *catalog.Catalog) CheckResult {
	result := CheckResult{Name: "artifacts", Details: filepath.Join(dir, index.ManifestFileName)}

	m, err := index.ReadManifest(dir)
	if err != nil {
		if cerrors.GetCode(err) == cerrors.ErrCodeIndexNotLoaded {
			result.Status = StatusWarn
			result.Message = "not built; run 'cinesphere index'"
			return result
		}
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	switch {
	case cat != nil && m.CatalogSHA256 != cat.Checksum():
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("version %s is stale: catalog changed since the build", m.Version)
	case c.embedder != nil && m.Model != c.embedder.ModelName():
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("version %s was built with %s, configured model is %s", m.Version, m.Model, c.embedder.ModelName())
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("version %s, %d items, %s", m.Version, m.Count, m.Backend)
	}
	return result
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// Summary condenses results into "ready", "ready_with_warnings" or
// "failed".
func Summary(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}
