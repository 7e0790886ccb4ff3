// Package mcpserver exposes code generation as a Model Context Protocol tool
// served over stdio.
package mcpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/flemzord/codeproxy/internal/codegen"
	"github.com/flemzord/codeproxy/internal/provider"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolName is the name of the generation tool.
const ToolName = "generate_code"

// Generator runs one orchestration. *codegen.Holder implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string, models []string, wrap bool) codegen.Outcome
}

// Config configures the MCP server.
type Config struct {
	// Name is the advertised server name (default: "codeproxy").
	Name string

	// Version is the advertised server version (default: "dev").
	Version string

	Generator Generator
	Logger    *slog.Logger
}

// Server wraps the MCP server and its generation tool.
type Server struct {
	mcpServer *server.MCPServer
	generator Generator
	logger    *slog.Logger
}

// GenerateResult is the structured content of a successful tool call.
type GenerateResult struct {
	Model string `json:"model"`
	Code  string `json:"code"`
}

// New creates a server with the generate_code tool registered.
func New(cfg Config) (*Server, error) {
	if cfg.Generator == nil {
		return nil, errors.New("mcpserver: generator is required")
	}
	if cfg.Name == "" {
		cfg.Name = "codeproxy"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = provider.NopLogger()
	}

	s := &Server{
		mcpServer: server.NewMCPServer(cfg.Name, cfg.Version, server.WithToolCapabilities(false)),
		generator: cfg.Generator,
		logger:    logger,
	}
	s.mcpServer.AddTool(generateTool(), s.handleGenerate)
	return s, nil
}

func generateTool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription("Generate Garry's Mod Lua (GLua) code from a natural-language request. "+
			"Models are tried in order; overloaded or rate-limited ones are skipped."),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("What the code should do"),
		),
		mcp.WithArray("models",
			mcp.Description("Ordered candidate model IDs. Defaults to the configured list."),
			mcp.WithStringItems(),
		),
	)
}

// MCPServer returns the underlying server, e.g. to serve it over another transport.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Run serves JSON-RPC messages from in to out until ctx is done or in is closed.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server ready", "tool", ToolName)
	return stdio.Listen(ctx, in, out)
}

func (s *Server) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil || strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("No prompt provided"), nil
	}

	var models []string
	for _, m := range req.GetStringSlice("models", nil) {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}

	out := s.generator.Generate(ctx, strings.TrimSpace(prompt), models, true)
	if !out.OK() {
		s.logger.Error("generation failed",
			"outcome", out.Kind.String(),
			"model", out.Model,
			"attempts", out.Attempts,
			"error", out.Cause.Message,
		)
		return mcp.NewToolResultError(out.Err().Error()), nil
	}

	return mcp.NewToolResultStructured(GenerateResult{Model: out.Model, Code: out.Code}, out.Code), nil
}
