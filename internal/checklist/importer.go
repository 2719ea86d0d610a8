package checklist

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk YAML layout of a checklist.
type fileFormat struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Sections []struct {
		Name  string `yaml:"name"`
		Items []struct {
			ID     string `yaml:"id"`
			Text   string `yaml:"text"`
			Active *bool  `yaml:"active"`
		} `yaml:"items"`
	} `yaml:"sections"`
}

// Parse decodes a checklist from YAML. Items are active unless marked
// otherwise.
func Parse(data []byte) (*Checklist, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing checklist yaml: %w", err)
	}
	if f.ID == "" {
		return nil, fmt.Errorf("checklist yaml: id is required")
	}

	c := &Checklist{ID: f.ID, Name: f.Name}
	if c.Name == "" {
		c.Name = f.ID
	}
	for _, sec := range f.Sections {
		for _, it := range sec.Items {
			active := true
			if it.Active != nil {
				active = *it.Active
			}
			c.Items = append(c.Items, Item{
				ID:       it.ID,
				Section:  sec.Name,
				Text:     it.Text,
				Position: len(c.Items),
				Active:   active,
			})
		}
	}
	return c, nil
}

// FindFiles returns the files under root matching a doublestar pattern
// such as "checklists/**/*.yml".
func FindFiles(root, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), filepath.ToSlash(pattern), doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("matching %q: %w", pattern, err)
	}
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(root, filepath.FromSlash(m))
	}
	return paths, nil
}

// ProgressFunc is called after each file is processed.
type ProgressFunc func(done, total int, path string)

// ImportResult summarises an import run.
type ImportResult struct {
	Imported []string
	Errors   []error
}

// ImportFiles parses and saves each file. A bad file is recorded and the
// rest are still imported.
func ImportFiles(ctx context.Context, store *Store, paths []string, onProgress ProgressFunc) *ImportResult {
	result := &ImportResult{}
	for i, p := range paths {
		if err := importFile(ctx, store, p); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", p, err))
		} else {
			result.Imported = append(result.Imported, p)
		}
		if onProgress != nil {
			onProgress(i+1, len(paths), p)
		}
	}
	return result
}

func importFile(ctx context.Context, store *Store, path string) error {
	data, err := fs.ReadFile(os.DirFS(filepath.Dir(path)), filepath.Base(path))
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return err
	}
	return store.Save(ctx, *c)
}
