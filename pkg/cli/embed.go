package cli

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/usecase/loader"
	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const gcsScheme = "gs://"

// splitGCSPath splits "gs://bucket/prefix" into bucket and prefix
func splitGCSPath(path string) (string, string, error) {
	rest := strings.TrimPrefix(path, gcsScheme)
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", goerr.New("bucket name is missing", goerr.V("path", path))
	}
	return bucket, strings.TrimSuffix(prefix, "/"), nil
}

func embedCommand() *cli.Command {
	var (
		cfg             config
		knowledgeDir    string
		collectionsFile string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "knowledge-dir",
			Aliases:     []string{"k"},
			Usage:       "Knowledge root: a local directory or gs://bucket/prefix",
			Value:       "knowledge",
			Sources:     cli.EnvVars("LOREKEEPER_KNOWLEDGE_DIR"),
			Destination: &knowledgeDir,
		},
		&cli.StringFlag{
			Name:        "collections-file",
			Usage:       "YAML file mapping collections to knowledge directories",
			Sources:     cli.EnvVars("LOREKEEPER_COLLECTIONS_FILE"),
			Destination: &collectionsFile,
		},
	}
	flags = append(flags, knowledgeFlags(&cfg)...)

	return &cli.Command{
		Name:  "embed",
		Usage: "Embed knowledge markdown files into the vector store",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			sources, err := loader.LoadSources(collectionsFile)
			if err != nil {
				return err
			}

			var source loader.Source
			if strings.HasPrefix(knowledgeDir, gcsScheme) {
				bucket, prefix, err := splitGCSPath(knowledgeDir)
				if err != nil {
					return err
				}
				storage, err := cfg.newStorage(ctx, bucket)
				if err != nil {
					return err
				}
				source = loader.NewStorageSource(storage, prefix)
			} else {
				source = loader.NewLocalSource(knowledgeDir)
			}

			kb, err := cfg.newKnowledge(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := kb.Close(); err != nil {
					logging.From(ctx).Warn("failed to close knowledge store", "error", err)
				}
			}()

			ld := loader.New(kb, source,
				loader.WithOutput(c.Root().Writer),
				loader.WithSources(sources),
			)
			report, err := ld.Run(ctx)
			if err != nil {
				return goerr.Wrap(err, "embedding failed")
			}

			logging.From(ctx).Debug("embedding finished", "total", report.Total)
			return nil
		},
	}
}
