package index

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/store"
)

// Artifact file names inside the artifact directory.
const (
	ManifestFileName   = "manifest.yaml"
	EmbeddingsFileName = "embeddings.npy"
)

// ManifestFormat is bumped when the artifact layout changes incompatibly.
const ManifestFormat = 1

// Manifest describes one build. It is written last, so its presence means
// every other artifact it names is complete.
type Manifest struct {
	Format        int           `yaml:"format"`
	Version       string        `yaml:"version"`
	BuiltAt       time.Time     `yaml:"built_at"`
	Model         string        `yaml:"model"`
	Dimensions    int           `yaml:"dimensions"`
	Backend       store.Backend `yaml:"backend"`
	Count         int           `yaml:"count"`
	CatalogSHA256 string        `yaml:"catalog_sha256,omitempty"`

	// Cleaned records that the catalog was loaded with short-plot and
	// duplicate rows dropped; it must be loaded the same way at search time.
	Cleaned bool `yaml:"cleaned,omitempty"`
}

// IndexFile is the backend blob path inside dir.
func (m *Manifest) IndexFile(dir string) string {
	return filepath.Join(dir, m.Backend.FileName())
}

// WriteManifest atomically writes m to dir/manifest.yaml.
func WriteManifest(dir string, m *Manifest) error {
	return store.WriteFileAtomic(filepath.Join(dir, ManifestFileName), func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		return enc.Close()
	})
}

// ReadManifest reads dir/manifest.yaml. A missing manifest is
// ErrCodeIndexNotLoaded: nothing was ever built there.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerrors.New(cerrors.ErrCodeIndexNotLoaded, "no index has been built in "+dir, err).
				WithSuggestion("Build the artifacts first: cinesphere index")
		}
		return nil, cerrors.Wrap(cerrors.ErrCodeFilePermission, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, corrupt(fmt.Sprintf("manifest %s is not valid YAML", path), err)
	}
	if m.Format != ManifestFormat {
		return nil, corrupt(fmt.Sprintf("manifest format %d is not supported (want %d)", m.Format, ManifestFormat), nil)
	}
	if m.Dimensions <= 0 || m.Count < 0 || m.Backend == "" {
		return nil, corrupt("manifest is missing dimensions, count or backend", nil)
	}
	return &m, nil
}

func corrupt(msg string, cause error) *cerrors.CineError {
	return cerrors.New(cerrors.ErrCodeCorruptIndex, msg, cause).
		WithSuggestion("Rebuild the artifacts: cinesphere index --force")
}
