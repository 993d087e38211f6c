package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lorekeeper/pkg/cli"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	gt.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runCLI(t *testing.T, args ...string) (string, *cli.Error) {
	t.Helper()
	buf := &bytes.Buffer{}
	err := cli.RunWithWriter(context.Background(), append([]string{"lorekeeper"}, args...), buf)
	return buf.String(), err
}

func TestEmbedSearchCollections(t *testing.T) {
	root := t.TempDir()
	knowledgeDir := filepath.Join(root, "knowledge")
	storeDir := filepath.Join(root, "store")

	writeFile(t, filepath.Join(knowledgeDir, "general", "onboarding.md"),
		"# Onboarding\n\nHow new members get access to the repository.\n")
	writeFile(t, filepath.Join(knowledgeDir, "general", "notes.md"), "plain notes without heading\n")
	writeFile(t, filepath.Join(knowledgeDir, "guides", "deploy.md"),
		"---\ntitle: Deploying\n---\nRun the release pipeline.\n")

	storeArgs := []string{"--store", "sqlite", "--chroma-path", storeDir, "--log-level", "error"}

	out, err := runCLI(t, append([]string{"embed", "--knowledge-dir", knowledgeDir}, storeArgs...)...)
	gt.V(t, err).Nil()
	gt.S(t, out).Contains("Processing collection: default")
	gt.S(t, out).Contains("  Embedded: general/notes.md")
	gt.S(t, out).Contains("  Embedded: guides/deploy.md")
	gt.S(t, out).Contains("Done! Embedded 3 total documents.")

	_, statErr := os.Stat(filepath.Join(storeDir, "knowledge.db"))
	gt.NoError(t, statErr)

	t.Run("collections", func(t *testing.T) {
		out, err := runCLI(t, append([]string{"collections"}, storeArgs...)...)
		gt.V(t, err).Nil()
		gt.S(t, out).Contains("default\n")
		gt.S(t, out).Contains("guides\n")
	})

	t.Run("search", func(t *testing.T) {
		out, err := runCLI(t, append([]string{"search", "-q", "release pipeline", "-c", "guides"}, storeArgs...)...)
		gt.V(t, err).Nil()
		gt.S(t, out).Contains("[1] Deploying")
		gt.S(t, out).Contains("source: deploy.md")
	})

	t.Run("search empty collection", func(t *testing.T) {
		out, err := runCLI(t, append([]string{"search", "-q", "anything", "-c", "nothing-here"}, storeArgs...)...)
		gt.V(t, err).Nil()
		gt.S(t, out).Contains("No results found")
	})
}

func TestEmbedSkipsMissingDirectories(t *testing.T) {
	out, err := runCLI(t, "embed",
		"--knowledge-dir", filepath.Join(t.TempDir(), "absent"),
		"--store", "memory",
		"--log-level", "error")
	gt.V(t, err).Nil()
	gt.S(t, out).Contains("Directory not found")
	gt.S(t, out).Contains("Done! Embedded 0 total documents.")
}

func TestEmbedWithCollectionsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "kb", "runbooks", "disk.md"), "# Disk full\n\nClean /var/log.\n")
	mapping := filepath.Join(root, "collections.yaml")
	writeFile(t, mapping, "sources:\n  - collection: runbooks\n    directory: runbooks\n")

	out, err := runCLI(t, "embed",
		"--knowledge-dir", filepath.Join(root, "kb"),
		"--collections-file", mapping,
		"--store", "memory",
		"--log-level", "error")
	gt.V(t, err).Nil()
	gt.S(t, out).Contains("Processing collection: runbooks")
	gt.S(t, out).NotContains("Processing collection: guides")
	gt.S(t, out).Contains("Done! Embedded 1 total documents.")
}

func TestSkillsCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b_skill.md"), "B")
	writeFile(t, filepath.Join(dir, "a_skill.md"), "A")

	out, err := runCLI(t, "skills", "--skills-dir", dir, "--log-level", "error")
	gt.V(t, err).Nil()
	gt.Equal(t, out, "A\n\n---\n\nB\n")

	out, err = runCLI(t, "skills", "--skills-dir", dir, "--list", "--log-level", "error")
	gt.V(t, err).Nil()
	gt.S(t, out).Contains("skill://a_skill.md\tSkill: a skill\ta skill expertise and guidelines")
}

func TestCommandErrors(t *testing.T) {
	testCases := map[string][]string{
		"unknown store":        {"collections", "--store", "cassandra", "--log-level", "error"},
		"unknown embedder":     {"collections", "--store", "memory", "--embedder", "word2vec", "--log-level", "error"},
		"chroma without url":   {"collections", "--store", "chroma", "--chroma-path", "./data", "--log-level", "error"},
		"firestore no project": {"collections", "--store", "firestore", "--firestore-project", "", "--log-level", "error"},
		"search without query": {"search", "--store", "memory", "--log-level", "error"},
		"unknown transport":    {"serve", "--transport", "sse", "--store", "memory", "--log-level", "error"},
		"probe without target": {"probe", "--log-level", "error"},
	}

	for name, args := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := runCLI(t, args...)
			gt.V(t, err).NotNil()
			gt.Equal(t, err.Code, 1)
		})
	}
}

func TestSplitGCSPath(t *testing.T) {
	bucket, prefix, err := cli.SplitGCSPath("gs://my-bucket/knowledge/")
	gt.NoError(t, err)
	gt.Equal(t, bucket, "my-bucket")
	gt.Equal(t, prefix, "knowledge")

	bucket, prefix, err = cli.SplitGCSPath("gs://only-bucket")
	gt.NoError(t, err)
	gt.Equal(t, bucket, "only-bucket")
	gt.Equal(t, prefix, "")

	_, _, err = cli.SplitGCSPath("gs://")
	gt.Error(t, err)
}

func TestProbeTargets(t *testing.T) {
	servers, err := cli.ProbeTargets("", "http://localhost:8080/mcp", nil)
	gt.NoError(t, err)
	gt.A(t, servers).Length(1)
	gt.Equal(t, servers[0].Transport, "http")

	servers, err = cli.ProbeTargets("", "", []string{"lorekeeper", "serve"})
	gt.NoError(t, err)
	gt.A(t, servers).Length(1)
	gt.Equal(t, servers[0].Transport, "stdio")
	gt.Equal(t, servers[0].Command, []string{"lorekeeper", "serve"})

	_, err = cli.ProbeTargets("", "", nil)
	gt.Error(t, err)
}
