package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo is what `cinesphere health` reports.
type StatusInfo struct {
	Loaded      bool      `json:"loaded"`
	Items       int       `json:"items"`
	Dimensions  int       `json:"dimensions,omitempty"`
	Model       string    `json:"model,omitempty"`
	Backend     string    `json:"backend,omitempty"`
	Version     string    `json:"version,omitempty"`
	BuiltAt     time.Time `json:"built_at,omitzero"`
	ArtifactDir string    `json:"artifact_dir"`

	EmbeddingsSize int64 `json:"embeddings_size"`
	IndexSize      int64 `json:"index_size"`

	EmbedderStatus string `json:"embedder_status"` // "ready", "offline"
	Error          string `json:"error,omitempty"`
}

// StatusRenderer writes StatusInfo as text or JSON.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("CineSphere: "+info.ArtifactDir))

	if !info.Loaded {
		_, _ = fmt.Fprintf(r.out, "  Index:    %s\n", r.renderStatus("not loaded"))
		if info.Error != "" {
			_, _ = fmt.Fprintf(r.out, "  Reason:   %s\n", info.Error)
		}
		return nil
	}

	_, _ = fmt.Fprintf(r.out, "  Items:    %d\n", info.Items)
	_, _ = fmt.Fprintf(r.out, "  Version:  %s\n", info.Version)
	if !info.BuiltAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Built:    %s\n", formatTime(info.BuiltAt))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Embeddings: %s\n", FormatBytes(info.EmbeddingsSize))
	_, _ = fmt.Fprintf(r.out, "    Index:      %s (%s)\n", FormatBytes(info.IndexSize), info.Backend)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Model:  %s (%d dims)\n", info.Model, info.Dimensions)
	_, _ = fmt.Fprintf(r.out, "    Status: %s\n", r.renderStatus(info.EmbedderStatus))
	return nil
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline":
		return r.styles.Warning.Render(status)
	case "not loaded":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

func formatTime(t time.Time) string {
	diff := time.Since(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a size as B, KB, MB or GB.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
