package puzzle

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed catalog
var catalogFS embed.FS

// Source lists and reads raw puzzle files laid out as <kind>/<branch>/<id>.json.
type Source interface {
	List(ctx context.Context, kind Kind, branch string) ([]string, error)
	Read(ctx context.Context, kind Kind, branch, id string) ([]byte, error)
}

// FSSource serves puzzle files from a filesystem tree.
type FSSource struct {
	fsys fs.FS
}

func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

// Builtin returns the catalog compiled into the binary.
func Builtin() *FSSource {
	sub, err := fs.Sub(catalogFS, "catalog")
	if err != nil {
		panic(err)
	}
	return NewFSSource(sub)
}

func (s *FSSource) List(_ context.Context, kind Kind, branch string) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, path.Join(string(kind), branch))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s/%s: %w", kind, branch, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FSSource) Read(_ context.Context, kind Kind, branch, id string) ([]byte, error) {
	data, err := fs.ReadFile(s.fsys, objectKey(kind, branch, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrPuzzleNotFound
		}
		return nil, fmt.Errorf("read puzzle %s: %w", id, err)
	}
	return data, nil
}

func objectKey(kind Kind, branch, id string) string {
	return path.Join(string(kind), branch, id+".json")
}
