package skill

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
)

const (
	skillExt  = ".md"
	separator = "\n\n---\n\n"
)

var (
	ErrSkillNotFound = goerr.New("skill not found")
	ErrInvalidURI    = goerr.New("invalid skill URI")
)

// Provider serves the markdown files of one directory as skill resources.
// The directory is scanned on every call so edits show up without a restart.
type Provider struct {
	dir string
}

func New(dir string) *Provider {
	return &Provider{dir: dir}
}

func (p *Provider) Dir() string {
	return p.dir
}

type skillMatter struct {
	Description string `yaml:"description"`
}

// files returns the names of skill files in lexicographic order. A missing
// directory yields no files.
func (p *Provider) files() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read skills directory", goerr.V("dir", p.dir))
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), skillExt) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// DisplayName converts a skill file name into its human readable name
func DisplayName(filename string) string {
	return strings.ReplaceAll(strings.TrimSuffix(filename, skillExt), "_", " ")
}

// List returns one resource per markdown file in the skills directory
func (p *Provider) List(ctx context.Context) ([]*model.SkillResource, error) {
	names, err := p.files()
	if err != nil {
		return nil, err
	}

	resources := make([]*model.SkillResource, 0, len(names))
	for _, name := range names {
		display := DisplayName(name)
		resources = append(resources, &model.SkillResource{
			URI:         model.SkillURIScheme + name,
			Name:        "Skill: " + display,
			Description: p.description(ctx, name, display),
			MIMEType:    model.MarkdownMIMEType,
		})
	}
	return resources, nil
}

func (p *Provider) description(ctx context.Context, filename, display string) string {
	fallback := display + " expertise and guidelines"

	raw, err := os.ReadFile(filepath.Join(p.dir, filename))
	if err != nil {
		logging.From(ctx).Debug("cannot read skill for description", "file", filename, "error", err)
		return fallback
	}

	var matter skillMatter
	if _, err := frontmatter.Parse(bytes.NewReader(raw), &matter); err != nil {
		logging.From(ctx).Debug("ignoring malformed skill front matter", "file", filename, "error", err)
		return fallback
	}
	if desc := strings.TrimSpace(matter.Description); desc != "" {
		return desc
	}
	return fallback
}

// resolve maps a skill URI to a path inside the skills directory. Anything that
// is not a plain markdown file name directly under the directory is rejected.
func (p *Provider) resolve(uri string) (string, error) {
	filename, ok := strings.CutPrefix(uri, model.SkillURIScheme)
	if !ok {
		return "", goerr.Wrap(ErrInvalidURI, "unsupported scheme", goerr.V("uri", uri))
	}

	if filename == "" ||
		strings.ContainsAny(filename, `/\`) ||
		filename != filepath.Base(filename) ||
		!strings.HasSuffix(filename, skillExt) ||
		filename == skillExt {
		return "", goerr.Wrap(ErrInvalidURI, "not a skill file name", goerr.V("uri", uri))
	}

	root, err := filepath.Abs(p.dir)
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve skills directory", goerr.V("dir", p.dir))
	}
	path := filepath.Join(root, filename)
	if rel, err := filepath.Rel(root, path); err != nil || rel != filename {
		return "", goerr.Wrap(ErrInvalidURI, "path escapes skills directory", goerr.V("uri", uri))
	}

	return path, nil
}

// Read returns the verbatim content of the skill identified by uri
func (p *Provider) Read(ctx context.Context, uri string) (string, error) {
	path, err := p.resolve(uri)
	if err != nil {
		return "", err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", goerr.Wrap(ErrSkillNotFound, "no such skill", goerr.V("uri", uri))
		}
		return "", goerr.Wrap(err, "failed to read skill", goerr.V("uri", uri))
	}

	return string(raw), nil
}

// ReadAll concatenates every skill in lexicographic file order, separated by a
// horizontal rule. Returns an empty string when there are no skills.
func (p *Provider) ReadAll(ctx context.Context) (string, error) {
	names, err := p.files()
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(p.dir, name))
		if err != nil {
			return "", goerr.Wrap(err, "failed to read skill", goerr.V("file", name))
		}
		parts = append(parts, string(raw))
	}

	return strings.Join(parts, separator), nil
}
