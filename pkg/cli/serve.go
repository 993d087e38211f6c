package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/service/mcp"
	"github.com/m-mizutani/lorekeeper/pkg/service/skill"
	"github.com/m-mizutani/lorekeeper/pkg/tool"
	kbtool "github.com/m-mizutani/lorekeeper/pkg/tool/knowledge"
	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"
)

// serverFlags returns flags describing how the server identifies itself
func serverFlags(name, version *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "server-name",
			Usage:       "Server name reported to MCP clients",
			Value:       "lorekeeper",
			Sources:     cli.EnvVars("MCP_SERVER_NAME"),
			Destination: name,
		},
		&cli.StringFlag{
			Name:        "server-version",
			Usage:       "Server version reported to MCP clients",
			Value:       "1.0.0",
			Sources:     cli.EnvVars("MCP_SERVER_VERSION"),
			Destination: version,
		},
	}
}

func skillsDirFlag(dir *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "skills-dir",
		Usage:       "Directory containing skill markdown files",
		Value:       "skills",
		Sources:     cli.EnvVars("LOREKEEPER_SKILLS_DIR"),
		Destination: dir,
	}
}

func serveCommand() *cli.Command {
	var (
		cfg            config
		name           string
		version        string
		skillsDir      string
		transport      string
		addr           string
		asInstructions bool
	)

	flags := []cli.Flag{
		skillsDirFlag(&skillsDir),
		&cli.StringFlag{
			Name:        "transport",
			Aliases:     []string{"t"},
			Usage:       "MCP transport (stdio, http)",
			Value:       transportStdio,
			Sources:     cli.EnvVars("LOREKEEPER_TRANSPORT"),
			Destination: &transport,
		},
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address for the http transport",
			Value:       ":8080",
			Sources:     cli.EnvVars("LOREKEEPER_ADDR"),
			Destination: &addr,
		},
		&cli.BoolFlag{
			Name:        "skills-as-instructions",
			Usage:       "Send all skills to clients as server instructions",
			Sources:     cli.EnvVars("LOREKEEPER_SKILLS_AS_INSTRUCTIONS"),
			Destination: &asInstructions,
		},
	}
	flags = append(flags, serverFlags(&name, &version)...)
	flags = append(flags, knowledgeFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			if transport != transportStdio && transport != transportHTTP {
				return goerr.New("unsupported transport",
					goerr.V("transport", transport),
					goerr.V("supported", []string{transportStdio, transportHTTP}))
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

			skills := skill.New(skillsDir)

			var opts []mcp.ServerOption
			if asInstructions {
				instructions, err := skills.ReadAll(ctx)
				if err != nil {
					return goerr.Wrap(err, "failed to load skills as instructions")
				}
				opts = append(opts, mcp.WithInstructions(instructions))
			}

			server := mcp.NewServer(name, version, tool.New(kbtool.Tools(kb)...), skills, opts...)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logging.From(ctx).Debug("starting server",
				"transport", transport,
				"store", cfg.store,
				"embedder", cfg.embedder,
				"skills_dir", skillsDir)

			if transport == transportHTTP {
				return server.ServeHTTP(ctx, addr)
			}
			return server.RunStdio(ctx)
		},
	}
}
