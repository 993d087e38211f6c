package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
)

// DocumentAdder is the part of the knowledge client the loader writes through
type DocumentAdder interface {
	AddDocument(ctx context.Context, collection string, id model.DocumentID, content string, metadata map[string]string) error
}

// Loader walks the configured knowledge directories and adds every markdown
// file to its collection
type Loader struct {
	store   DocumentAdder
	source  Source
	sources []model.CollectionSource
	output  io.Writer
}

// Option is a functional option for Loader
type Option func(*Loader)

// WithOutput sets the progress writer
func WithOutput(w io.Writer) Option {
	return func(l *Loader) {
		l.output = w
	}
}

// WithSources replaces the default collection mapping
func WithSources(sources []model.CollectionSource) Option {
	return func(l *Loader) {
		l.sources = sources
	}
}

func New(store DocumentAdder, source Source, opts ...Option) *Loader {
	l := &Loader{
		store:   store,
		source:  source,
		sources: model.DefaultCollectionSources(),
		output:  os.Stdout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CollectionReport is the outcome for one mapping
type CollectionReport struct {
	Collection string
	Directory  string
	Documents  int
	Skipped    bool
}

// Report summarizes a loader run
type Report struct {
	Collections []CollectionReport
	Total       int
}

// Run ingests every mapping in order. The first failure aborts the run; documents
// written before it stay in the store.
func (l *Loader) Run(ctx context.Context) (*Report, error) {
	fmt.Fprintf(l.output, "Starting knowledge embedding...\n\n")

	report := &Report{}
	for _, src := range l.sources {
		fmt.Fprintf(l.output, "Processing collection: %s\n", src.Collection)

		cr, err := l.embedDirectory(ctx, src)
		if err != nil {
			return report, err
		}

		report.Collections = append(report.Collections, *cr)
		report.Total += cr.Documents
		fmt.Fprintf(l.output, "  Added %d documents\n\n", cr.Documents)
	}

	fmt.Fprintf(l.output, "\nDone! Embedded %d total documents.\n", report.Total)
	return report, nil
}

func (l *Loader) embedDirectory(ctx context.Context, src model.CollectionSource) (*CollectionReport, error) {
	logger := logging.From(ctx).With("collection", src.Collection, "directory", src.Directory)
	cr := &CollectionReport{Collection: src.Collection, Directory: src.Directory}

	names, found, err := l.source.List(ctx, src.Directory)
	if err != nil {
		return nil, err
	}
	if !found {
		fmt.Fprintf(l.output, "Directory not found: %s (skipping)\n", src.Directory)
		logger.Debug("knowledge directory missing")
		cr.Skipped = true
		return cr, nil
	}

	for _, name := range names {
		content, err := l.source.Read(ctx, src.Directory, name)
		if err != nil {
			return nil, err
		}

		id := model.DocumentID(src.Directory + "/" + name)
		metadata := map[string]string{
			"source":    name,
			"directory": src.Directory,
			"title":     ExtractTitle(name, content),
		}

		if err := l.store.AddDocument(ctx, src.Collection, id, content, metadata); err != nil {
			return nil, goerr.Wrap(err, "failed to embed document",
				goerr.V("collection", src.Collection),
				goerr.V("id", id))
		}

		cr.Documents++
		fmt.Fprintf(l.output, "  Embedded: %s\n", id)
	}

	logger.Info("collection embedded", "documents", cr.Documents)
	return cr, nil
}

var headingPattern = regexp.MustCompile(`(?m)^#\s+(.+)$`)

type documentMatter struct {
	Title string `yaml:"title"`
}

// ExtractTitle picks a document title: front matter "title", then the first
// level-one heading, then the file name without extension.
func ExtractTitle(filename, content string) string {
	body := content

	var matter documentMatter
	if rest, err := frontmatter.Parse(bytes.NewReader([]byte(content)), &matter); err == nil {
		if title := strings.TrimSpace(matter.Title); title != "" {
			return title
		}
		body = string(rest)
	}

	if m := headingPattern.FindStringSubmatch(body); m != nil {
		if title := strings.TrimSpace(m[1]); title != "" {
			return title
		}
	}

	return strings.Replace(filename, markdownExt, "", 1)
}
