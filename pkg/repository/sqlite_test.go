package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/m-mizutani/lorekeeper/pkg/repository"
)

func TestSQLite(t *testing.T) {
	repo, err := repository.NewSQLite(":memory:")
	gt.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo, "")
}

func TestSQLitePersistence(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "chroma-data")

	repo, err := repository.NewSQLite(dir)
	gt.NoError(t, err)
	gt.NoError(t, repo.Upsert(ctx, "guides", []*model.Document{
		{ID: "guides/setup.md", Content: "# Setup", Metadata: map[string]string{"title": "Setup"}, Embedding: vec(0, 1)},
	}))
	gt.NoError(t, repo.Close())

	_, err = os.Stat(filepath.Join(dir, repository.SQLiteFileName))
	gt.NoError(t, err)

	reopened, err := repository.NewSQLite(dir)
	gt.NoError(t, err)
	defer reopened.Close()

	names, err := reopened.ListCollections(ctx)
	gt.NoError(t, err)
	gt.Equal(t, names, []string{"guides"})

	results, err := reopened.Query(ctx, "guides", vec(0, 1), 3)
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].ID, model.DocumentID("guides/setup.md"))
	gt.Equal(t, results[0].Content, "# Setup")
}

func TestSQLiteListCollectionsEmpty(t *testing.T) {
	repo, err := repository.NewSQLite(":memory:")
	gt.NoError(t, err)
	defer repo.Close()

	names, err := repo.ListCollections(context.Background())
	gt.NoError(t, err)
	gt.NotNil(t, names)
	gt.A(t, names).Length(0)
}
