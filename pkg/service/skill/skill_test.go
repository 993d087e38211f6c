package skill_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lorekeeper/pkg/service/skill"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		gt.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"code_review.md": "# Code Review\n",
		"testing.md":     "---\ndescription: How we write tests\n---\n# Testing\n",
		"notes.txt":      "ignored",
	})
	gt.NoError(t, os.Mkdir(filepath.Join(dir, "nested.md"), 0o755))

	resources, err := skill.New(dir).List(context.Background())
	gt.NoError(t, err)
	gt.A(t, resources).Length(2)

	gt.Equal(t, resources[0].URI, "skill://code_review.md")
	gt.Equal(t, resources[0].Name, "Skill: code review")
	gt.Equal(t, resources[0].Description, "code review expertise and guidelines")
	gt.Equal(t, resources[0].MIMEType, "text/markdown")

	gt.Equal(t, resources[1].URI, "skill://testing.md")
	gt.Equal(t, resources[1].Description, "How we write tests")
}

func TestListMissingDirectory(t *testing.T) {
	resources, err := skill.New(filepath.Join(t.TempDir(), "absent")).List(context.Background())
	gt.NoError(t, err)
	gt.A(t, resources).Length(0)
}

func TestListReflectsChanges(t *testing.T) {
	dir := t.TempDir()
	p := skill.New(dir)
	ctx := context.Background()

	resources, err := p.List(ctx)
	gt.NoError(t, err)
	gt.A(t, resources).Length(0)

	writeFiles(t, dir, map[string]string{"new_skill.md": "# New"})
	resources, err = p.List(ctx)
	gt.NoError(t, err)
	gt.A(t, resources).Length(1)
	gt.Equal(t, resources[0].Name, "Skill: new skill")
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	content := "---\ndescription: keep me\n---\n# Testing\n\nWrite table tests.\n"
	writeFiles(t, dir, map[string]string{"testing.md": content})
	p := skill.New(dir)
	ctx := context.Background()

	t.Run("verbatim content", func(t *testing.T) {
		got, err := p.Read(ctx, "skill://testing.md")
		gt.NoError(t, err)
		gt.Equal(t, got, content)
	})

	t.Run("missing skill", func(t *testing.T) {
		_, err := p.Read(ctx, "skill://missing.md")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, skill.ErrSkillNotFound))
	})

	invalid := []string{
		"skill://../secret.md",
		"skill://sub/testing.md",
		`skill://..\secret.md`,
		"skill://testing.txt",
		"skill://",
		"skill://.md",
		"file://testing.md",
		"testing.md",
	}
	for _, uri := range invalid {
		t.Run("rejects "+uri, func(t *testing.T) {
			_, err := p.Read(ctx, uri)
			gt.Error(t, err)
			gt.True(t, errors.Is(err, skill.ErrInvalidURI))
		})
	}
}

func TestReadDoesNotEscapeDirectory(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "skills")
	gt.NoError(t, os.Mkdir(dir, 0o755))
	writeFiles(t, parent, map[string]string{"secret.md": "top secret"})

	_, err := skill.New(dir).Read(context.Background(), "skill://../secret.md")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, skill.ErrInvalidURI))
}

func TestReadAll(t *testing.T) {
	ctx := context.Background()

	t.Run("concatenates in name order", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{
			"b.md": "B",
			"a.md": "A",
			"c.md": "C",
		})
		got, err := skill.New(dir).ReadAll(ctx)
		gt.NoError(t, err)
		gt.Equal(t, got, "A\n\n---\n\nB\n\n---\n\nC")
	})

	t.Run("empty directory", func(t *testing.T) {
		got, err := skill.New(t.TempDir()).ReadAll(ctx)
		gt.NoError(t, err)
		gt.Equal(t, got, "")
	})

	t.Run("missing directory", func(t *testing.T) {
		got, err := skill.New(filepath.Join(t.TempDir(), "none")).ReadAll(ctx)
		gt.NoError(t, err)
		gt.Equal(t, got, "")
	})
}

func TestDisplayName(t *testing.T) {
	gt.Equal(t, skill.DisplayName("api_design_rules.md"), "api design rules")
	gt.Equal(t, skill.DisplayName("plain.md"), "plain")
}
