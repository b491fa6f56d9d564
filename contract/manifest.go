package contract

import (
	"sort"
	"strings"
	"time"

	"github.com/syssam/fabrica"
)

// Manifest embeds the generated client files for the pull workflow.
// It is marshaled directly by the /_psdk/sdk/download endpoint and
// into the emitted manifest source file.
type Manifest struct {
	Version   string            `json:"version"`
	Generated string            `json:"generated"`
	Files     map[string]string `json:"files"`
}

// BuildManifest packages client files keyed by slash-separated
// relative path. Absolute paths and paths escaping the SDK root are
// rejected; a pull client re-materializes these paths verbatim.
func BuildManifest(files map[string]string, version string, generatedAt time.Time) (*Manifest, error) {
	m := &Manifest{
		Version:   version,
		Generated: generatedAt.UTC().Format(time.RFC3339),
		Files:     make(map[string]string, len(files)),
	}
	for path, body := range files {
		if !SafePath(path) {
			return nil, fabrica.NewIssueError("files."+path, "manifest paths must be relative and must not escape the SDK root")
		}
		m.Files[path] = body
	}
	return m, nil
}

// Paths returns the manifest's file paths in sorted order, the shape
// served by /_psdk/sdk/manifest.
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// SafePath reports whether a manifest path is safe to re-materialize:
// relative, slash-separated, no parent traversal, no empty segments.
func SafePath(path string) bool {
	if path == "" || strings.HasPrefix(path, "/") || strings.Contains(path, "\\") {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
