package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/lorekeeper/pkg/service/skill"
	"github.com/urfave/cli/v3"
)

func skillsCommand() *cli.Command {
	var (
		cfg       config
		skillsDir string
		list      bool
	)

	flags := []cli.Flag{
		skillsDirFlag(&skillsDir),
		&cli.BoolFlag{
			Name:        "list",
			Aliases:     []string{"l"},
			Usage:       "Print skill resources instead of their content",
			Destination: &list,
		},
	}
	flags = append(flags, logFlags(&cfg)...)

	return &cli.Command{
		Name:  "skills",
		Usage: "Print all skills concatenated",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			provider := skill.New(skillsDir)

			if list {
				resources, err := provider.List(ctx)
				if err != nil {
					return err
				}
				for _, r := range resources {
					fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\n", r.URI, r.Name, r.Description)
				}
				return nil
			}

			text, err := provider.ReadAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, text)
			return nil
		},
	}
}
