package repository_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/m-mizutani/lorekeeper/pkg/repository"
)

func TestMilvus(t *testing.T) {
	address := os.Getenv("TEST_MILVUS_ADDRESS")
	if address == "" {
		t.Skip("TEST_MILVUS_ADDRESS is not set")
	}

	repo, err := repository.NewMilvus(context.Background(), address)
	gt.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo, "_"+time.Now().Format("20060102150405"))
}

func TestMilvusContentLimit(t *testing.T) {
	fits := &model.Document{ID: "a.md", Content: strings.Repeat("a", repository.MilvusMaxContentBytes), Embedding: vec(1)}
	tooLarge := &model.Document{ID: "b.md", Content: strings.Repeat("b", repository.MilvusMaxContentBytes+1), Embedding: vec(1)}

	gt.NoError(t, repository.ValidateMilvusContent("general", []*model.Document{fits}))

	err := repository.ValidateMilvusContent("general", []*model.Document{fits, tooLarge})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrContentTooLarge))
	gt.True(t, repository.IsInvalidInput(err))
}
