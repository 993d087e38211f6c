package loader_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lorekeeper/pkg/adapter"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/m-mizutani/lorekeeper/pkg/repository"
	"github.com/m-mizutani/lorekeeper/pkg/usecase/knowledge"
	"github.com/m-mizutani/lorekeeper/pkg/usecase/loader"
)

type addedDoc struct {
	collection string
	id         model.DocumentID
	content    string
	metadata   map[string]string
}

type recorder struct {
	docs   []addedDoc
	failOn model.DocumentID
}

func (r *recorder) AddDocument(ctx context.Context, collection string, id model.DocumentID, content string, metadata map[string]string) error {
	if id == r.failOn {
		return goerr.New("store unavailable")
	}
	r.docs = append(r.docs, addedDoc{collection, id, content, metadata})
	return nil
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		gt.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		gt.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestRunDefaultMapping(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"guides/setup.md":  "# Setup Guide\n\nInstall.",
		"guides/notes.txt": "ignored",
	})

	rec := &recorder{}
	out := &bytes.Buffer{}
	report, err := loader.New(rec, loader.NewLocalSource(root), loader.WithOutput(out)).Run(context.Background())
	gt.NoError(t, err)

	gt.Equal(t, report.Total, 1)
	gt.A(t, report.Collections).Length(2)
	gt.True(t, report.Collections[0].Skipped)
	gt.Equal(t, report.Collections[1].Documents, 1)

	gt.A(t, rec.docs).Length(1)
	gt.Equal(t, rec.docs[0].collection, "guides")
	gt.Equal(t, rec.docs[0].id, model.DocumentID("guides/setup.md"))
	gt.Equal(t, rec.docs[0].content, "# Setup Guide\n\nInstall.")
	gt.Equal(t, rec.docs[0].metadata, map[string]string{
		"source":    "setup.md",
		"directory": "guides",
		"title":     "Setup Guide",
	})

	text := out.String()
	gt.S(t, text).Contains("Processing collection: default\n")
	gt.S(t, text).Contains("Directory not found: general (skipping)\n")
	gt.S(t, text).Contains("Processing collection: guides\n")
	gt.S(t, text).Contains("  Embedded: guides/setup.md\n")
	gt.S(t, text).Contains("  Added 1 documents\n")
	gt.S(t, text).Contains("Done! Embedded 1 total documents.")
}

func TestRunOrderAndIDs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"general/b.md": "B",
		"general/a.md": "A",
		"guides/c.md":  "C",
	})

	rec := &recorder{}
	_, err := loader.New(rec, loader.NewLocalSource(root), loader.WithOutput(io.Discard)).Run(context.Background())
	gt.NoError(t, err)

	ids := []model.DocumentID{}
	for _, d := range rec.docs {
		ids = append(ids, d.id)
	}
	gt.Equal(t, ids, []model.DocumentID{"general/a.md", "general/b.md", "guides/c.md"})
	gt.Equal(t, rec.docs[0].collection, "default")
	gt.Equal(t, rec.docs[0].metadata["title"], "a")
}

func TestRunEmptyDirectories(t *testing.T) {
	root := t.TempDir()
	gt.NoError(t, os.MkdirAll(filepath.Join(root, "general"), 0o755))
	gt.NoError(t, os.MkdirAll(filepath.Join(root, "guides"), 0o755))
	writeTree(t, root, map[string]string{"guides/readme.txt": "not markdown"})

	rec := &recorder{}
	out := &bytes.Buffer{}
	report, err := loader.New(rec, loader.NewLocalSource(root), loader.WithOutput(out)).Run(context.Background())
	gt.NoError(t, err)

	gt.Equal(t, report.Total, 0)
	gt.A(t, report.Collections).Length(2)
	for _, cr := range report.Collections {
		gt.False(t, cr.Skipped)
		gt.Equal(t, cr.Documents, 0)
	}
	gt.A(t, rec.docs).Length(0)

	text := out.String()
	gt.S(t, text).NotContains("Directory not found")
	gt.Equal(t, strings.Count(text, "  Added 0 documents\n"), 2)
	gt.S(t, text).Contains("Done! Embedded 0 total documents.")
}

func TestRunAbortsOnFailure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"general/a.md": "A",
		"general/b.md": "B",
		"guides/c.md":  "C",
	})

	rec := &recorder{failOn: "general/b.md"}
	out := &bytes.Buffer{}
	_, err := loader.New(rec, loader.NewLocalSource(root), loader.WithOutput(out)).Run(context.Background())
	gt.Error(t, err)
	gt.S(t, err.Error()).Contains("store unavailable")

	gt.A(t, rec.docs).Length(1)
	gt.S(t, out.String()).NotContains("Done!")
}

func TestRunCustomSources(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"methods/tdd.md": "# TDD"})

	rec := &recorder{}
	report, err := loader.New(rec, loader.NewLocalSource(root),
		loader.WithOutput(io.Discard),
		loader.WithSources([]model.CollectionSource{{Collection: "methods", Directory: "methods"}}),
	).Run(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, report.Total, 1)
	gt.Equal(t, rec.docs[0].collection, "methods")
}

func TestRunIntoKnowledgeStore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"guides/deploy.md":  "# Deploying\n\nShip the release to production.",
		"guides/testing.md": "# Testing\n\nWrite table driven tests.",
	})

	ctx := context.Background()
	client := knowledge.NewWithRepository(repository.NewMemory(), adapter.NewHashEmbedder(128))
	_, err := loader.New(client, loader.NewLocalSource(root), loader.WithOutput(io.Discard)).Run(ctx)
	gt.NoError(t, err)

	results, err := client.Search(ctx, "production release", model.SearchOptions{Collection: "guides", Limit: 1})
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Title(), "Deploying")

	// re-running replaces instead of duplicating
	_, err = loader.New(client, loader.NewLocalSource(root), loader.WithOutput(io.Discard)).Run(ctx)
	gt.NoError(t, err)
	results, err = client.Search(ctx, "anything", model.SearchOptions{Collection: "guides", Limit: 10})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
}

type fakeStorage struct {
	objects map[string]string
}

func (f *fakeStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix+"/") && !strings.Contains(strings.TrimPrefix(k, prefix+"/"), "/") {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	v, ok := f.objects[key]
	if !ok {
		return nil, goerr.New("no such object")
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

var _ adapter.Storage = (*fakeStorage)(nil)

func TestStorageSource(t *testing.T) {
	storage := &fakeStorage{objects: map[string]string{
		"kb/guides/b.md":        "# B",
		"kb/guides/a.md":        "# A",
		"kb/guides/image.png":   "binary",
		"kb/guides/deep/x.md":   "# nested",
		"other/guides/other.md": "# other",
	}}

	rec := &recorder{}
	out := &bytes.Buffer{}
	report, err := loader.New(rec, loader.NewStorageSource(storage, "/kb/"), loader.WithOutput(out)).Run(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, report.Total, 2)
	gt.Equal(t, rec.docs[0].id, model.DocumentID("guides/a.md"))
	gt.Equal(t, rec.docs[1].id, model.DocumentID("guides/b.md"))
	gt.S(t, out.String()).Contains("Directory not found: general (skipping)")
}

func TestExtractTitle(t *testing.T) {
	testCases := map[string]struct {
		filename string
		content  string
		expect   string
	}{
		"heading": {
			filename: "setup.md",
			content:  "intro\n# Setup Guide\n## Sub",
			expect:   "Setup Guide",
		},
		"second level only": {
			filename: "setup.md",
			content:  "## Not a title\ntext",
			expect:   "setup",
		},
		"no heading": {
			filename: "plain_notes.md",
			content:  "just text",
			expect:   "plain_notes",
		},
		"front matter title wins": {
			filename: "x.md",
			content:  "---\ntitle: From Matter\n---\n# From Heading\n",
			expect:   "From Matter",
		},
		"front matter without title": {
			filename: "x.md",
			content:  "---\ntags: [a]\n---\n# From Heading\n",
			expect:   "From Heading",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			gt.Equal(t, loader.ExtractTitle(tc.filename, tc.content), tc.expect)
		})
	}
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()

	t.Run("empty path returns defaults", func(t *testing.T) {
		sources, err := loader.LoadSources("")
		gt.NoError(t, err)
		gt.Equal(t, sources, model.DefaultCollectionSources())
	})

	t.Run("valid file", func(t *testing.T) {
		p := filepath.Join(dir, "valid.yaml")
		gt.NoError(t, os.WriteFile(p, []byte("sources:\n  - collection: methods\n    directory: methods\n  - collection: default\n    directory: general\n"), 0o644))

		sources, err := loader.LoadSources(p)
		gt.NoError(t, err)
		gt.Equal(t, sources, []model.CollectionSource{
			{Collection: "methods", Directory: "methods"},
			{Collection: "default", Directory: "general"},
		})
	})

	invalid := map[string]string{
		"no sources":  "sources: []\n",
		"missing dir": "sources:\n  - collection: x\n",
		"traversal":   "sources:\n  - collection: x\n    directory: ../etc\n",
		"broken yaml": "sources: [\n",
	}
	for name, body := range invalid {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yaml")
			gt.NoError(t, os.WriteFile(p, []byte(body), 0o644))
			_, err := loader.LoadSources(p)
			gt.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := loader.LoadSources(filepath.Join(dir, "absent.yaml"))
		gt.Error(t, err)
	})
}
