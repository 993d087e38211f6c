package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/service/mcp"
	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
)

func probeCommand() *cli.Command {
	var (
		cfg        config
		url        string
		configFile string
		callTool   string
		arguments  string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "url",
			Usage:       "Streamable HTTP endpoint of the server",
			Destination: &url,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "YAML file listing servers to probe",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "call",
			Usage:       "Tool to call on every probed server",
			Destination: &callTool,
		},
		&cli.StringFlag{
			Name:        "arguments",
			Usage:       "JSON object passed to the tool given by --call",
			Value:       "{}",
			Destination: &arguments,
		},
	}
	flags = append(flags, logFlags(&cfg)...)

	return &cli.Command{
		Name:      "probe",
		Usage:     "Connect to MCP servers and list their tools and resources",
		ArgsUsage: "[command args...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)

			servers, err := probeTargets(configFile, url, c.Args().Slice())
			if err != nil {
				return err
			}

			var args map[string]any
			if callTool != "" {
				if err := json.Unmarshal([]byte(arguments), &args); err != nil {
					return goerr.Wrap(err, "failed to parse tool arguments", goerr.V("arguments", arguments))
				}
			}

			client := mcp.NewClient("lorekeeper", c.Root().Version)
			defer func() {
				if err := client.Close(); err != nil {
					logging.From(ctx).Warn("failed to close MCP sessions", "error", err)
				}
			}()

			for _, server := range servers {
				if err := client.Connect(ctx, server); err != nil {
					return err
				}
				if err := probeServer(ctx, c.Root().Writer, client, server.Name, callTool, args); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// probeTargets picks servers from a config file, a URL or a command line, in that order
func probeTargets(configFile, url string, command []string) ([]mcp.ServerConfig, error) {
	switch {
	case configFile != "":
		cfg, err := mcp.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
		return cfg.Servers, nil

	case url != "":
		return []mcp.ServerConfig{{Name: url, Transport: "http", URL: url}}, nil

	case len(command) > 0:
		return []mcp.ServerConfig{{Name: command[0], Transport: "stdio", Command: command}}, nil

	default:
		return nil, goerr.New("one of --config, --url or a server command is required")
	}
}

func probeServer(ctx context.Context, w io.Writer, client *mcp.Client, name, callTool string, args map[string]any) error {
	fmt.Fprintf(w, "Server: %s\n", name)

	tools, err := client.ListTools(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Tools (%d):\n", len(tools))
	for _, t := range tools {
		fmt.Fprintf(w, "    - %s: %s\n", t.Name, t.Description)
	}

	resources, err := client.ListResources(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Resources (%d):\n", len(resources))
	for _, r := range resources {
		fmt.Fprintf(w, "    - %s (%s)\n", r.URI, r.Name)
	}

	if callTool == "" {
		return nil
	}

	result, err := client.CallTool(ctx, name, callTool, args)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Call %s (isError=%v):\n", callTool, result.IsError)
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			fmt.Fprintf(w, "%s\n", text.Text)
		}
	}
	return nil
}
