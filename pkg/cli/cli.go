package cli

import (
	"context"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// version is reported by the root command and the probe client
var version = "dev"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// A missing .env file is the normal case
	if err := godotenv.Load(); err != nil {
		logging.Default().Debug("no .env file loaded", "error", err)
	}

	return run(ctx, argv, os.Stdout)
}

func run(ctx context.Context, argv []string, w io.Writer) *Error {
	cmd := &cli.Command{
		Name:    "lorekeeper",
		Usage:   "MCP server for a markdown knowledge base and skills",
		Version: version,
		Writer:  w,
		Commands: []*cli.Command{
			serveCommand(),
			embedCommand(),
			searchCommand(),
			collectionsCommand(),
			skillsCommand(),
			probeCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
