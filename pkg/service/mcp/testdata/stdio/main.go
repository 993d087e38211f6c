package main

import (
	"context"
	"log"
	"os"

	"github.com/m-mizutani/lorekeeper/pkg/adapter"
	"github.com/m-mizutani/lorekeeper/pkg/repository"
	"github.com/m-mizutani/lorekeeper/pkg/service/mcp"
	"github.com/m-mizutani/lorekeeper/pkg/service/skill"
	"github.com/m-mizutani/lorekeeper/pkg/tool"
	kbtool "github.com/m-mizutani/lorekeeper/pkg/tool/knowledge"
	"github.com/m-mizutani/lorekeeper/pkg/usecase/knowledge"
)

// A knowledge server over stdio backed by process memory, seeded with one guide
func main() {
	ctx := context.Background()

	client := knowledge.NewWithRepository(repository.NewMemory(), adapter.NewHashEmbedder(64))
	if err := client.AddDocument(ctx, "guides", "guides/probe.md", "# Probe\n\nConnectivity check guide.",
		map[string]string{"title": "Probe"}); err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	server := mcp.NewServer("stdio-fixture", "0.0.1",
		tool.New(kbtool.Tools(client)...),
		skill.New(os.Getenv("SKILLS_DIR")),
	)

	if err := server.RunStdio(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
