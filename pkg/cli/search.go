package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/m-mizutani/lorekeeper/pkg/usecase/knowledge"
	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg         config
		query       string
		collection  string
		limit       int64
		interactive bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Text to search for",
			Destination: &query,
		},
		&cli.StringFlag{
			Name:        "collection",
			Aliases:     []string{"c"},
			Usage:       "Collection to search",
			Value:       knowledge.DefaultCollection,
			Destination: &collection,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of results",
			Value:       knowledge.DefaultLimit,
			Destination: &limit,
		},
		&cli.BoolFlag{
			Name:        "interactive",
			Aliases:     []string{"i"},
			Usage:       "Read queries from an interactive prompt",
			Destination: &interactive,
		},
	}
	flags = append(flags, knowledgeFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Search the knowledge base",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			w := c.Root().Writer

			if !interactive && query == "" {
				return goerr.New("query is required unless --interactive is set")
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

			opts := model.SearchOptions{Collection: collection, Limit: int(limit)}

			if !interactive {
				results, err := kb.Search(ctx, query, opts)
				if err != nil {
					return err
				}
				printResults(w, results)
				return nil
			}

			return searchLoop(ctx, w, kb, opts)
		},
	}
}

func searchLoop(ctx context.Context, w io.Writer, kb *knowledge.Client, opts model.SearchOptions) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("[%s]> ", opts.Collection),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          w,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to start prompt")
	}
	defer rl.Close()

	fmt.Fprintf(w, "Interactive search on %q. Type 'exit' to quit.\n", opts.Collection)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read query")
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		if query == "exit" {
			return nil
		}

		sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		sp.Suffix = " searching..."
		sp.Start()
		results, err := kb.Search(ctx, query, opts)
		sp.Stop()

		if err != nil {
			fmt.Fprintf(w, "Error: %s\n", err.Error())
			continue
		}
		printResults(w, results)
	}
}

func printResults(w io.Writer, results []*model.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintf(w, "No results found\n")
		return
	}

	for i, r := range results {
		title := r.Title()
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "[%d] %s (relevance: %.3f)\n", i+1, title, r.Relevance())
		if source, ok := r.Metadata["source"].(string); ok {
			fmt.Fprintf(w, "    source: %s\n", source)
		}
		fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(r.Content))
	}
}
