package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"llamachat/internal/common/fsutil"
	"llamachat/pkg/types"
)

// MaxDisplayName is the display name length above which names are truncated.
const MaxDisplayName = 20

// GGUFScanner lists *.gguf files in a directory.
type GGUFScanner struct{}

// NewGGUFScanner returns a scanner.
func NewGGUFScanner() GGUFScanner { return GGUFScanner{} }

// Scan builds a registry from the *.gguf files of dir, sorted by file name.
// ID is the full filename (including extension); Path is the absolute file path.
func (GGUFScanner) Scan(dir string) ([]types.Model, error) {
	abs, err := fsutil.Resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		m := types.Model{ID: name, Name: DisplayName(name), Path: filepath.Join(abs, name)}
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans dir with a GGUFScanner.
func LoadDir(dir string) ([]types.Model, error) { return NewGGUFScanner().Scan(dir) }

// DisplayName shortens long file names to MaxDisplayName characters,
// ending in "...".
func DisplayName(name string) string {
	r := []rune(name)
	if len(r) <= MaxDisplayName {
		return name
	}
	return string(r[:MaxDisplayName-3]) + "..."
}

// Find returns the model whose ID, display name or path equals key.
func Find(models []types.Model, key string) (types.Model, bool) {
	for _, m := range models {
		if m.ID == key || m.Name == key || m.Path == key {
			return m, true
		}
	}
	return types.Model{}, false
}
