package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo contains pipeline health information for the status
// command.
type StatusInfo struct {
	Collection string `json:"collection"`
	Backend    string `json:"backend"`

	// Store stats
	IDsTotal       int64 `json:"ids_total"`
	IDsInWikipedia int64 `json:"ids_in_wikipedia"`
	IDsProperties  int64 `json:"ids_properties"`
	Entities       int64 `json:"entities"`
	Chunks         int64 `json:"chunks"`

	// Index stats
	IndexDocs int64 `json:"index_docs"`

	// Embedding cache
	CachedPassages int64 `json:"cached_passages"`
	CachedQueries  int64 `json:"cached_queries"`

	// Storage size on disk
	DataSize int64 `json:"data_size"`

	// Last completed ingest checkpoint
	LastStage    string    `json:"last_stage,omitempty"`
	LastDumpDate string    `json:"last_dump_date,omitempty"`
	LastLanguage string    `json:"last_language,omitempty"`
	LastIngest   time.Time `json:"last_ingest,omitempty"`

	// Component status
	EmbedderProvider string `json:"embedder_provider"`
	EmbedderStatus   string `json:"embedder_status"` // "ready", "offline", "error"
	EmbedderModel    string `json:"embedder_model,omitempty"`
	IndexStatus      string `json:"index_status"` // "ready", "offline", "error"
}

// StatusRenderer displays pipeline status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Collection: "+info.Collection))

	_, _ = fmt.Fprintln(r.out, "  Stores:")
	_, _ = fmt.Fprintf(r.out, "    IDs:          %d (%d in Wikipedia, %d properties)\n",
		info.IDsTotal, info.IDsInWikipedia, info.IDsProperties)
	_, _ = fmt.Fprintf(r.out, "    Entities:     %d\n", info.Entities)
	_, _ = fmt.Fprintf(r.out, "    Chunks:       %d\n", info.Chunks)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Index (%s):\n", info.Backend)
	_, _ = fmt.Fprintf(r.out, "    Documents:    %d\n", info.IndexDocs)
	_, _ = fmt.Fprintf(r.out, "    Status:       %s\n", r.renderStatus(info.IndexStatus))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Cache:")
	_, _ = fmt.Fprintf(r.out, "    Passages:     %d\n", info.CachedPassages)
	_, _ = fmt.Fprintf(r.out, "    Queries:      %d\n", info.CachedQueries)
	_, _ = fmt.Fprintln(r.out)

	if info.DataSize > 0 {
		_, _ = fmt.Fprintf(r.out, "  Data dir size:  %s\n", FormatBytes(info.DataSize))
		_, _ = fmt.Fprintln(r.out)
	}

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Provider:     %s\n", info.EmbedderProvider)
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:        %s\n", info.EmbedderModel)
	}
	_, _ = fmt.Fprintf(r.out, "    Status:       %s\n", r.renderStatus(info.EmbedderStatus))

	if !info.LastIngest.IsZero() {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "  Last ingest:    %s stage, dump %s (%s), %s\n",
			info.LastStage, info.LastDumpDate, info.LastLanguage, formatTime(info.LastIngest))
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "running":
		return r.styles.Success.Render(status)
	case "offline", "stopped":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to a human-readable size.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
