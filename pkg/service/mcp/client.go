package mcp

import (
	"context"
	"os"
	"os/exec"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
)

// Client manages connections to one or more MCP servers. It is used to probe a
// running knowledge server from the command line.
type Client struct {
	name     string
	version  string
	sessions map[string]*mcp.ClientSession
}

// ServerConfig represents configuration for a single MCP server
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   []string          `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}

// Config represents the probe configuration file structure
type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

// NewClient creates a new MCP client identifying itself with name and version
func NewClient(name, version string) *Client {
	return &Client{
		name:     name,
		version:  version,
		sessions: make(map[string]*mcp.ClientSession),
	}
}

// Connect connects to an MCP server with the given configuration
func (c *Client) Connect(ctx context.Context, cfg ServerConfig) error {
	if _, exists := c.sessions[cfg.Name]; exists {
		return goerr.New("server already connected", goerr.V("name", cfg.Name))
	}

	var (
		transport mcp.Transport
		err       error
	)
	switch cfg.Transport {
	case "stdio":
		transport, err = stdioTransport(cfg)
	case "http":
		transport, err = httpTransport(cfg)
	default:
		return goerr.New("unsupported transport",
			goerr.V("transport", cfg.Transport),
			goerr.V("supported", []string{"stdio", "http"}))
	}
	if err != nil {
		return goerr.Wrap(err, "failed to create transport", goerr.V("server", cfg.Name))
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    c.name + "-probe",
		Version: c.version,
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to connect to MCP server", goerr.V("server", cfg.Name))
	}

	c.sessions[cfg.Name] = session
	return nil
}

func stdioTransport(cfg ServerConfig) (mcp.Transport, error) {
	if len(cfg.Command) == 0 {
		return nil, goerr.New("command is required for stdio transport")
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	return &mcp.CommandTransport{Command: cmd}, nil
}

func httpTransport(cfg ServerConfig) (mcp.Transport, error) {
	if cfg.URL == "" {
		return nil, goerr.New("url is required for http transport")
	}

	return &mcp.StreamableClientTransport{
		Endpoint: cfg.URL,
	}, nil
}

func (c *Client) session(serverName string) (*mcp.ClientSession, error) {
	session, exists := c.sessions[serverName]
	if !exists {
		return nil, goerr.New("server not found", goerr.V("name", serverName))
	}
	return session, nil
}

// Servers returns names of all connected servers in sorted order
func (c *Client) Servers() []string {
	names := make([]string, 0, len(c.sessions))
	for name := range c.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTools returns all tools advertised by a server
func (c *Client) ListTools(ctx context.Context, serverName string) ([]*mcp.Tool, error) {
	session, err := c.session(serverName)
	if err != nil {
		return nil, err
	}

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tools", goerr.V("server", serverName))
	}
	return result.Tools, nil
}

// ListResources returns all resources advertised by a server
func (c *Client) ListResources(ctx context.Context, serverName string) ([]*mcp.Resource, error) {
	session, err := c.session(serverName)
	if err != nil {
		return nil, err
	}

	result, err := session.ListResources(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list resources", goerr.V("server", serverName))
	}
	return result.Resources, nil
}

// ReadResource returns the text contents of a resource
func (c *Client) ReadResource(ctx context.Context, serverName, uri string) (string, error) {
	session, err := c.session(serverName)
	if err != nil {
		return "", err
	}

	result, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return "", goerr.Wrap(err, "failed to read resource",
			goerr.V("server", serverName),
			goerr.V("uri", uri))
	}

	var text string
	for _, content := range result.Contents {
		text += content.Text
	}
	return text, nil
}

// CallTool calls a tool on a specific server
func (c *Client) CallTool(ctx context.Context, serverName string, toolName string, arguments map[string]any) (*mcp.CallToolResult, error) {
	session, err := c.session(serverName)
	if err != nil {
		return nil, err
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: arguments,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call tool",
			goerr.V("server", serverName),
			goerr.V("tool", toolName))
	}

	return result, nil
}

// Close closes all MCP server connections
func (c *Client) Close() error {
	var firstErr error
	for name, session := range c.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = goerr.Wrap(err, "failed to close session", goerr.V("server", name))
		}
	}
	c.sessions = make(map[string]*mcp.ClientSession)
	return firstErr
}

// LoadConfig reads a probe configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read MCP config file", goerr.V("path", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse MCP config file", goerr.V("path", path))
	}
	if len(cfg.Servers) == 0 {
		return nil, goerr.New("no MCP servers configured", goerr.V("path", path))
	}

	return &cfg, nil
}
