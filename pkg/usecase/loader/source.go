package loader

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/adapter"
)

const markdownExt = ".md"

// Source is the knowledge root the loader reads markdown files from
type Source interface {
	// List returns the markdown file names directly under dir in lexicographic
	// order. found is false when dir does not exist.
	List(ctx context.Context, dir string) (names []string, found bool, err error)

	// Read returns the content of dir/name
	Read(ctx context.Context, dir, name string) (string, error)
}

// LocalSource reads from a directory on the local filesystem
type LocalSource struct {
	root string
}

func NewLocalSource(root string) *LocalSource {
	return &LocalSource{root: root}
}

func (s *LocalSource) List(ctx context.Context, dir string) ([]string, bool, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, goerr.Wrap(err, "failed to read knowledge directory",
			goerr.V("root", s.root),
			goerr.V("dir", dir))
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), markdownExt) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, true, nil
}

func (s *LocalSource) Read(ctx context.Context, dir, name string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.root, dir, name))
	if err != nil {
		return "", goerr.Wrap(err, "failed to read knowledge file",
			goerr.V("dir", dir),
			goerr.V("name", name))
	}
	return string(raw), nil
}

// StorageSource reads from a Cloud Storage bucket under prefix. Object stores
// have no directories, so a directory with no objects counts as absent.
type StorageSource struct {
	storage adapter.Storage
	prefix  string
}

func NewStorageSource(storage adapter.Storage, prefix string) *StorageSource {
	return &StorageSource{
		storage: storage,
		prefix:  strings.Trim(prefix, "/"),
	}
}

func (s *StorageSource) key(parts ...string) string {
	if s.prefix != "" {
		parts = append([]string{s.prefix}, parts...)
	}
	return path.Join(parts...)
}

func (s *StorageSource) List(ctx context.Context, dir string) ([]string, bool, error) {
	keys, err := s.storage.List(ctx, s.key(dir))
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to list knowledge objects", goerr.V("dir", dir))
	}
	if len(keys) == 0 {
		return nil, false, nil
	}

	var names []string
	for _, key := range keys {
		name := path.Base(key)
		if strings.HasSuffix(name, markdownExt) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, true, nil
}

func (s *StorageSource) Read(ctx context.Context, dir, name string) (string, error) {
	r, err := s.storage.Get(ctx, s.key(dir, name))
	if err != nil {
		return "", goerr.Wrap(err, "failed to open knowledge object", goerr.V("dir", dir), goerr.V("name", name))
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read knowledge object", goerr.V("dir", dir), goerr.V("name", name))
	}
	return string(raw), nil
}
