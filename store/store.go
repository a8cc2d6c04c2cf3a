// Package store persists named pattern snapshots as a simple keyed JSON
// store under the user config directory.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Daniel-Hillman/chop-shop-base44-sub003/config"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/sequencer"
)

// PatternInfo describes a saved pattern (for listing).
type PatternInfo struct {
	Name     string
	Modified time.Time
}

// savedPattern is the on-disk envelope.
type savedPattern struct {
	Name    string            `json:"name"`
	SavedAt time.Time         `json:"savedAt"`
	Pattern sequencer.Pattern `json:"pattern"`
	Chops   []sequencer.Chop  `json:"chops,omitempty"`
}

// PatternsDir returns the patterns directory path.
func PatternsDir() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "patterns"), nil
}

func patternPath(name string) (string, error) {
	dir, err := PatternsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sanitizeFilename(name)+".json"), nil
}

// List returns all saved patterns, most recently modified first.
func List() ([]PatternInfo, error) {
	dir, err := PatternsDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []PatternInfo{}, nil
		}
		return nil, err
	}

	var infos []PatternInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, PatternInfo{
			Name:     strings.TrimSuffix(entry.Name(), ".json"),
			Modified: fi.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Modified.After(infos[j].Modified)
	})
	return infos, nil
}

// Save writes a pattern snapshot (and the chop list it was built against)
// under a name, overwriting any previous save with that name.
func Save(name string, pattern sequencer.Pattern, chops []sequencer.Chop) error {
	if name == "" {
		name = "untitled"
	}

	dir, err := PatternsDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	envelope := savedPattern{
		Name:    name,
		SavedAt: time.Now(),
		Pattern: pattern,
		Chops:   chops,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return err
	}

	path, err := patternPath(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads a saved pattern by name.
func Load(name string) (sequencer.Pattern, []sequencer.Chop, error) {
	path, err := patternPath(name)
	if err != nil {
		return sequencer.Pattern{}, nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sequencer.Pattern{}, nil, fmt.Errorf("no saved pattern named %q", name)
		}
		return sequencer.Pattern{}, nil, err
	}

	var envelope savedPattern
	if err := json.Unmarshal(data, &envelope); err != nil {
		return sequencer.Pattern{}, nil, err
	}
	return envelope.Pattern, envelope.Chops, nil
}

// Delete removes a saved pattern.
func Delete(name string) error {
	path, err := patternPath(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// sanitizeFilename removes/replaces characters that are problematic in filenames.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	name = strings.ReplaceAll(name, ":", "-")
	for _, c := range []string{"*", "?", "\"", "<", ">", "|"} {
		name = strings.ReplaceAll(name, c, "")
	}
	return name
}
