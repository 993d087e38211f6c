package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lorekeeper/pkg/model"
	"github.com/m-mizutani/lorekeeper/pkg/service/skill"
	"github.com/m-mizutani/lorekeeper/pkg/tool"
	"github.com/m-mizutani/lorekeeper/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	methodCallTool      = "tools/call"
	methodListResources = "resources/list"
	methodReadResource  = "resources/read"
)

// Server exposes the tool registry and the skill directory over MCP
type Server struct {
	name     string
	version  string
	registry *tool.Registry
	skills   *skill.Provider
	banner   io.Writer
	server   *mcp.Server
}

type serverConfig struct {
	instructions string
	banner       io.Writer
}

// ServerOption is a functional option for Server
type ServerOption func(*serverConfig)

// WithInstructions sets the instructions sent to clients on initialization
func WithInstructions(instructions string) ServerOption {
	return func(c *serverConfig) {
		c.instructions = instructions
	}
}

// WithBannerWriter sets where the startup line is written. Defaults to stderr.
func WithBannerWriter(w io.Writer) ServerOption {
	return func(c *serverConfig) {
		c.banner = w
	}
}

// NewServer builds the protocol server. Tool definitions are fixed here; skill
// resources are read from disk on every request.
func NewServer(name, version string, registry *tool.Registry, skills *skill.Provider, opts ...ServerOption) *Server {
	cfg := &serverConfig{banner: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		name:     name,
		version:  version,
		registry: registry,
		skills:   skills,
		banner:   cfg.banner,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, &mcp.ServerOptions{
		Instructions: cfg.instructions,
	})

	for _, def := range registry.Definitions() {
		s.server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}, s.callTool)
	}

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "skill",
		Description: "Markdown skill documents",
		URITemplate: model.SkillURIScheme + "{filename}",
		MIMEType:    model.MarkdownMIMEType,
	}, s.readResource)

	s.server.AddReceivingMiddleware(s.middleware)

	return s
}

// MCP returns the underlying SDK server
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// middleware answers the requests whose results depend on state the SDK does
// not track: unknown tool names and the live skill directory listing
func (s *Server) middleware(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		switch method {
		case methodCallTool:
			if r, ok := req.(*mcp.CallToolRequest); ok && r.Params != nil && !s.registry.Has(r.Params.Name) {
				return s.callTool(ctx, r)
			}

		case methodListResources:
			return s.listResources(ctx)

		case methodReadResource:
			if r, ok := req.(*mcp.ReadResourceRequest); ok && r.Params != nil {
				return s.readResource(ctx, r)
			}
		}

		return next(ctx, method, req)
	}
}

func (s *Server) callTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := s.registry.Dispatch(ctx, req.Params.Name, req.Params.Arguments)
	return toCallToolResult(res), nil
}

// toCallToolResult translates every dispatch outcome into a tool result; no
// outcome becomes a protocol-level error
func toCallToolResult(res *tool.Result) *mcp.CallToolResult {
	if res.Kind != tool.ResultSuccess {
		return errorResult(res.Message())
	}

	text, err := tool.Marshal(res.Value)
	if err != nil {
		return errorResult(err.Error())
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}
}

func (s *Server) listResources(ctx context.Context) (*mcp.ListResourcesResult, error) {
	skills, err := s.skills.List(ctx)
	if err != nil {
		logging.From(ctx).Error("failed to list skills", "error", err)
		return nil, err
	}

	resources := make([]*mcp.Resource, 0, len(skills))
	for _, sk := range skills {
		resources = append(resources, &mcp.Resource{
			URI:         sk.URI,
			Name:        sk.Name,
			Description: sk.Description,
			MIMEType:    sk.MIMEType,
		})
	}
	return &mcp.ListResourcesResult{Resources: resources}, nil
}

func (s *Server) readResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI

	content, err := s.skills.Read(ctx, uri)
	if err != nil {
		if errors.Is(err, skill.ErrSkillNotFound) || errors.Is(err, skill.ErrInvalidURI) {
			logging.From(ctx).Debug("skill not readable", "uri", uri, "error", err)
			return nil, mcp.ResourceNotFoundError(uri)
		}
		logging.From(ctx).Error("failed to read skill", "uri", uri, "error", err)
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: model.MarkdownMIMEType,
				Text:     content,
			},
		},
	}, nil
}

func (s *Server) announce(transport string) {
	fmt.Fprintf(s.banner, "%s v%s running on %s\n", s.name, s.version, transport)
}

// RunStdio serves a single session over stdin/stdout until the client
// disconnects or ctx is cancelled
func (s *Server) RunStdio(ctx context.Context) error {
	s.announce("stdio")
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "stdio server stopped")
	}
	return nil
}

// Handler returns a streamable HTTP handler serving this server
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// ServeHTTP listens on addr until ctx is cancelled
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.announce("http://" + addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return goerr.Wrap(err, "http server stopped", goerr.V("addr", addr))

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return goerr.Wrap(err, "failed to shutdown http server", goerr.V("addr", addr))
		}
		return nil
	}
}
