// Package files lists directories for the tag editor's file browser.
package files

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	ErrNotDirectory     = errors.New("path does not exist or is not a directory")
	ErrInvalidSortField = errors.New("invalid sort field")
)

const (
	IconFolder = "icon-folder"
	IconScript = "icon-script-file"
)

// File is one node of the browser tree. Directories carry a non-nil
// Children slice; plain files omit it.
type File struct {
	Children   []File     `json:"children,omitzero"`
	Icon       string     `json:"icon"`
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Title      string     `json:"title"`
	Size       int64      `json:"size"`
	State      string     `json:"state,omitempty"`
	UpdateTime *time.Time `json:"update_time,omitempty"`
}

// List returns dir as a root node whose children are its direct entries.
// sortFields may contain name, size or update_time, each optionally
// prefixed with "-" for descending order; names sort with Chinese
// collation when nothing else decides.
func List(dir string, sortFields []string) (File, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return File{}, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	less, err := comparator(sortFields)
	if err != nil {
		return File{}, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return File{}, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	children := make([]File, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info.
			continue
		}
		mod := fi.ModTime()
		f := File{
			Icon:       IconScript,
			Name:       e.Name(),
			Title:      e.Name(),
			Size:       fi.Size(),
			UpdateTime: &mod,
		}
		if e.IsDir() {
			f.Icon = IconFolder
			f.Children = []File{}
		}
		children = append(children, f)
	}

	slices.SortStableFunc(children, less)
	for i := range children {
		children[i].ID = i + 1
	}

	name := filepath.Base(filepath.Clean(dir))
	return File{
		Children: children,
		Icon:     IconFolder,
		ID:       0,
		Name:     name,
		Title:    name,
	}, nil
}

func comparator(fields []string) (func(a, b File) int, error) {
	col := collate.New(language.Chinese)

	type key struct {
		cmp  func(a, b File) int
		desc bool
	}
	var keys []key
	for _, f := range fields {
		desc := strings.HasPrefix(f, "-")
		switch strings.TrimPrefix(f, "-") {
		case "name", "title":
			keys = append(keys, key{func(a, b File) int { return col.CompareString(a.Name, b.Name) }, desc})
		case "size":
			keys = append(keys, key{func(a, b File) int { return cmp.Compare(a.Size, b.Size) }, desc})
		case "update_time":
			keys = append(keys, key{func(a, b File) int { return a.UpdateTime.Compare(*b.UpdateTime) }, desc})
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidSortField, f)
		}
	}
	keys = append(keys, key{func(a, b File) int { return col.CompareString(a.Name, b.Name) }, false})

	return func(a, b File) int {
		for _, k := range keys {
			c := k.cmp(a, b)
			if k.desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	}, nil
}
