package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/antibyte/c64mcp/pkg/screen"
)

const defaultCaptureScale = 2

type captureArgs struct {
	Scale         *int  `json:"scale,omitempty" jsonschema:"pixel scale factor from 1 to 4, default 2"`
	IncludeBorder *bool `json:"include_border,omitempty" jsonschema:"draw the border around the screen, default true"`
}

type captureModeArgs struct {
	Mode          string `json:"mode" jsonschema:"mode to interpret screen memory as"`
	Scale         *int   `json:"scale,omitempty" jsonschema:"pixel scale factor from 1 to 4, default 2"`
	IncludeBorder *bool  `json:"include_border,omitempty" jsonschema:"draw the border around the screen, default true"`
}

func renderOptions(scale *int, border *bool) screen.RenderOptions {
	opts := screen.RenderOptions{Scale: defaultCaptureScale, Border: true}
	if scale != nil {
		opts.Scale = *scale
	}
	if border != nil {
		opts.Border = *border
	}
	return opts
}

func captureSchema[In any](withMode bool) *jsonschema.Schema {
	return inputSchema[In](func(p map[string]*jsonschema.Schema) {
		p["scale"].Minimum, p["scale"].Maximum = bounds(1, 4)
		if withMode {
			modes := make([]string, len(screen.ValidModes))
			for i, m := range screen.ValidModes {
				modes[i] = string(m)
			}
			p["mode"].Enum = enumOf(modes...)
		}
	})
}

func renderContent(snap *screen.Snapshot, mode screen.Mode, opts screen.RenderOptions) ([]mcp.Content, error) {
	img, err := snap.Render(mode, opts)
	if err != nil {
		return nil, err
	}
	data, err := screen.EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return []mcp.Content{&mcp.ImageContent{Data: data, MIMEType: "image/png"}}, nil
}

func (s *Server) registerScreenTools() {
	addTool(s, &mcp.Tool{
		Name:        "capture_screen",
		Description: "Capture the C64 screen as a PNG in its current video mode",
		InputSchema: captureSchema[captureArgs](false),
	}, func(ctx context.Context, in captureArgs) (*mcp.CallToolResult, error) {
		snap, err := s.screen.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		content := []mcp.Content{&mcp.TextContent{Text: snap.Info.Summary()}}
		if !snap.Info.Mode.Valid() {
			content = append(content, &mcp.TextContent{
				Text: fmt.Sprintf("%s cannot be displayed by the VIC-II, the screen is black. Try capture_all_screen_modes.", snap.Info.Name),
			})
			return &mcp.CallToolResult{Content: content}, nil
		}
		rendered, err := renderContent(snap, snap.Info.Mode, renderOptions(in.Scale, in.IncludeBorder))
		if err != nil {
			return nil, err
		}
		content = append(content, rendered...)
		if !snap.Info.Mode.Bitmap() {
			content = append(content, &mcp.TextContent{Text: "Screen text:\n" + snap.Text()})
		}
		return &mcp.CallToolResult{Content: content}, nil
	})

	addTool(s, &mcp.Tool{
		Name:        "capture_screen_with_mode",
		Description: "Capture the screen interpreting memory in the given video mode, whatever mode is active",
		InputSchema: captureSchema[captureModeArgs](true),
	}, func(ctx context.Context, in captureModeArgs) (*mcp.CallToolResult, error) {
		mode, err := screen.ParseMode(in.Mode)
		if err != nil || !mode.Valid() {
			return nil, fmt.Errorf("Invalid screen mode: %s", in.Mode)
		}
		snap, err := s.screen.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		content := []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("Rendered as %s (active: %s)", mode.Name(), snap.Info.Summary()),
		}}
		rendered, err := renderContent(snap, mode, renderOptions(in.Scale, in.IncludeBorder))
		if err != nil {
			return nil, err
		}
		return &mcp.CallToolResult{Content: append(content, rendered...)}, nil
	})

	addTool(s, &mcp.Tool{
		Name:        "capture_all_screen_modes",
		Description: "Render one snapshot of screen memory in every video mode, useful when the active mode looks wrong",
		InputSchema: captureSchema[captureArgs](false),
	}, func(ctx context.Context, in captureArgs) (*mcp.CallToolResult, error) {
		snap, err := s.screen.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		opts := renderOptions(in.Scale, in.IncludeBorder)
		content := []mcp.Content{&mcp.TextContent{Text: "Active: " + snap.Info.Summary()}}
		for _, mode := range screen.ValidModes {
			rendered, err := renderContent(snap, mode, opts)
			if err != nil {
				return nil, fmt.Errorf("rendering %s: %w", mode.Name(), err)
			}
			content = append(content, &mcp.TextContent{Text: "=== " + mode.Name() + " ==="})
			content = append(content, rendered...)
		}
		return &mcp.CallToolResult{Content: content}, nil
	})

	addTool(s, &mcp.Tool{
		Name:        "get_screen_mode",
		Description: "Detect the active video mode and the VIC-II memory layout",
	}, func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
		info, err := s.screen.Detect(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return nil, err
		}
		return textResult(string(data)), nil
	})

	addTool(s, &mcp.Tool{
		Name:        "read_screen_text",
		Description: "Read the text screen as 25 lines of text",
	}, func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
		snap, err := s.screen.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if snap.Info.Mode.Bitmap() {
			return nil, fmt.Errorf("screen is in %s mode, use capture_screen", snap.Info.Name)
		}
		return textResult(snap.Text()), nil
	})
}
