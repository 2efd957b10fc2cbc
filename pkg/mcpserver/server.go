// Package mcpserver exposes the C64 Ultimate and the BASIC tokenizer as MCP
// tools and prompts.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/device"
	"github.com/antibyte/c64mcp/pkg/keyboard"
	"github.com/antibyte/c64mcp/pkg/loader"
	"github.com/antibyte/c64mcp/pkg/logger"
	"github.com/antibyte/c64mcp/pkg/monitor"
	"github.com/antibyte/c64mcp/pkg/screen"
	"github.com/antibyte/c64mcp/pkg/store"
)

// Version is reported to MCP clients; main sets it at link time
var Version = "dev"

// Options carries the optional collaborators of a Server
type Options struct {
	Store *store.Store // nil disables history
	Hub   *monitor.Hub // nil disables monitor events
}

// Server is the MCP server bound to one C64 Ultimate
type Server struct {
	server *mcp.Server
	dev    *device.Client
	keys   *keyboard.Typist
	loader *loader.Loader
	screen *screen.Reader
	store  *store.Store
	hub    *monitor.Hub

	historyLimit int
}

// New creates the server and registers every tool and prompt
func New(dev *device.Client, opts Options) *Server {
	keys := keyboard.New(dev)
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    configuration.GetString("Server", "name", "c64u-mcp-server"),
			Version: Version,
		}, nil),
		dev:          dev,
		keys:         keys,
		loader:       loader.New(dev, keys),
		screen:       screen.NewReader(dev),
		store:        opts.Store,
		hub:          opts.Hub,
		historyLimit: configuration.GetInt("Database", "history_limit", 20),
	}

	s.registerDeviceTools()
	s.registerMemoryTools()
	s.registerDriveTools()
	s.registerScreenTools()
	s.registerBasicTools()
	s.registerPrompts()
	return s
}

// MCP returns the underlying SDK server
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Run serves MCP over stdin/stdout until ctx is done or the client leaves
func (s *Server) Run(ctx context.Context) error {
	logger.MCPInfo("Serving MCP over stdio for device %s", s.dev.BaseURL())
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// handler is what every tool implements; In is decoded by the SDK
type handler[In any] func(ctx context.Context, in In) (*mcp.CallToolResult, error)

// addTool registers h and wraps it with logging, auditing and error
// formatting
func addTool[In any](s *Server, tool *mcp.Tool, h handler[In]) {
	name := tool.Name
	mcp.AddTool(s.server, tool, func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		logger.MCPDebug("Tool %s called", name)

		res, err := h(ctx, in)
		elapsed := time.Since(start)
		s.audit(ctx, name, err, elapsed)
		if err != nil {
			logger.MCPWarn("Tool %s failed after %v: %v", name, elapsed, err)
			return nil, nil, toolError(err)
		}
		return res, nil, nil
	})
}

// audit records the call in the history database and on the monitor
func (s *Server) audit(ctx context.Context, tool string, callErr error, d time.Duration) {
	if s.hub != nil {
		s.hub.ToolCall(ctx, tool, callErr, d)
	}
	if s.store == nil {
		return
	}
	call := &store.ToolCall{Tool: tool, OK: callErr == nil, Duration: d}
	if callErr != nil {
		call.Error = callErr.Error()
	}
	if err := s.store.RecordToolCall(context.WithoutCancel(ctx), call); err != nil {
		logger.Warn(logger.AreaDatabase, "Recording call of %s failed: %v", tool, err)
	}
}

// toolError renders errors the way MCP clients have always seen them
func toolError(err error) error {
	var statusErr *device.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Errorf("HTTP Error %d: %s", statusErr.StatusCode, statusErr.Body)
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return fmt.Errorf("Request Error: %w", err)
	}
	return fmt.Errorf("Error: %w", err)
}

// textResult is a single text block
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func textResultf(format string, args ...any) *mcp.CallToolResult {
	return textResult(fmt.Sprintf(format, args...))
}

// orDefault returns the device's answer, or fallback when it was empty
func orDefault(body, fallback string) *mcp.CallToolResult {
	if body == "" {
		return textResult(fallback)
	}
	return textResult(body)
}

// passThrough adapts device calls without their own message
func passThrough(body string, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return nil, err
	}
	return textResult(body), nil
}

// withDefault adapts device calls that may answer with an empty body
func withDefault(fallback string) func(string, error) (*mcp.CallToolResult, error) {
	return func(body string, err error) (*mcp.CallToolResult, error) {
		if err != nil {
			return nil, err
		}
		return orDefault(body, fallback), nil
	}
}

// inputSchema infers the schema of In and lets customize add enums and
// bounds the struct tags cannot express
func inputSchema[In any](customize func(props map[string]*jsonschema.Schema)) *jsonschema.Schema {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		panic(fmt.Sprintf("mcpserver: schema for %T: %v", *new(In), err))
	}
	if customize != nil {
		customize(schema.Properties)
	}
	return schema
}

func enumOf(values ...string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func bounds(lo, hi float64) (*float64, *float64) {
	return &lo, &hi
}

// noArgs is the input of tools without parameters
type noArgs struct{}
