package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func collectionsCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "collections",
		Usage: "List collections in the knowledge base",
		Flags: knowledgeFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			kb, err := cfg.newKnowledge(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := kb.Close(); err != nil {
					logging.From(ctx).Warn("failed to close knowledge store", "error", err)
				}
			}()

			names, err := kb.ListCollections(ctx)
			if err != nil {
				return err
			}

			if len(names) == 0 {
				fmt.Fprintf(c.Root().Writer, "No collections found\n")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(c.Root().Writer, name)
			}
			return nil
		},
	}
}
