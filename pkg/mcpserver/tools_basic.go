package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/antibyte/c64mcp/pkg/auth"
	"github.com/antibyte/c64mcp/pkg/basic"
	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/device"
	"github.com/antibyte/c64mcp/pkg/keyboard"
	"github.com/antibyte/c64mcp/pkg/loader"
	"github.com/antibyte/c64mcp/pkg/logger"
	"github.com/antibyte/c64mcp/pkg/monitor"
	"github.com/antibyte/c64mcp/pkg/petscii"
	"github.com/antibyte/c64mcp/pkg/store"
)

// the first keys are the ones a user presses on their own
const sendableKeys = 18

type typeTextArgs struct {
	Text   string `json:"text" jsonschema:"text to type, {RETURN} or {F1} style placeholders insert special keys"`
	WaitMS *int   `json:"wait_ms,omitempty" jsonschema:"milliseconds to wait after each buffer full, default 100"`
}

type sendKeyArgs struct {
	Key string `json:"key" jsonschema:"key to press"`
}

type enterProgramArgs struct {
	Program string `json:"program" jsonschema:"BASIC program, one numbered line per text line"`
	AutoRun bool   `json:"auto_run,omitempty" jsonschema:"type RUN after writing the program"`
	List    bool   `json:"list,omitempty" jsonschema:"type LIST after writing the program"`
	Reset   bool   `json:"reset,omitempty" jsonschema:"reset the machine before writing"`
	Address string `json:"address,omitempty" jsonschema:"load address in hex, default 0801"`
}

type tokenizeArgs struct {
	Program    string `json:"program" jsonschema:"BASIC program, one numbered line per text line"`
	Address    string `json:"address,omitempty" jsonschema:"load address in hex, default 0801"`
	IncludePRG bool   `json:"include_prg,omitempty" jsonschema:"also return the PRG file (load address plus image) as base64"`
}

type historyArgs struct {
	Limit *int   `json:"limit,omitempty" jsonschema:"number of programs to return"`
	ID    string `json:"id,omitempty" jsonschema:"return only the program with this id"`
}

type toolCallArgs struct {
	Limit *int `json:"limit,omitempty" jsonschema:"number of calls to return"`
}

func loadAddress(s string) (uint16, error) {
	if s == "" {
		return basic.DefaultBase, nil
	}
	return device.ParseAddress(s)
}

func (s *Server) registerBasicTools() {
	addTool(s, &mcp.Tool{
		Name:        "type_text",
		Description: "Type text on the C64 keyboard through the keyboard buffer",
		InputSchema: inputSchema[typeTextArgs](func(p map[string]*jsonschema.Schema) {
			p["wait_ms"].Minimum, p["wait_ms"].Maximum = bounds(0, 5000)
		}),
	}, func(ctx context.Context, in typeTextArgs) (*mcp.CallToolResult, error) {
		wait := time.Duration(configuration.GetInt("Keyboard", "wait_ms", 100)) * time.Millisecond
		if in.WaitMS != nil {
			wait = time.Duration(*in.WaitMS) * time.Millisecond
		}
		n, err := s.keys.TypeText(ctx, in.Text, wait)
		if errors.Is(err, keyboard.ErrNothingToType) {
			return textResult("No valid characters to type"), nil
		}
		if err != nil {
			return nil, err
		}
		return textResultf("Typed %d characters", n), nil
	})

	keys := make([]string, 0, sendableKeys)
	for _, k := range petscii.Keys[:sendableKeys] {
		keys = append(keys, k.Name)
	}
	addTool(s, &mcp.Tool{
		Name:        "send_key",
		Description: "Press a single special key",
		InputSchema: inputSchema[sendKeyArgs](func(p map[string]*jsonschema.Schema) {
			p["key"].Enum = enumOf(keys...)
		}),
	}, func(ctx context.Context, in sendKeyArgs) (*mcp.CallToolResult, error) {
		name := strings.ToUpper(strings.TrimSpace(in.Key))
		code, err := s.keys.SendKey(ctx, name)
		if err != nil {
			return nil, err
		}
		return textResultf("Sent key: %s (PETSCII $%02X)", name, code), nil
	})

	addTool(s, &mcp.Tool{
		Name: "enter_basic_program",
		Description: "Tokenize a BASIC program, write it into memory and set the BASIC pointers, " +
			"optionally listing or running it. Much faster than typing the program.",
	}, func(ctx context.Context, in enterProgramArgs) (*mcp.CallToolResult, error) {
		base, err := loadAddress(in.Address)
		if err != nil {
			return nil, err
		}
		res, err := s.loader.EnterProgram(ctx, in.Program, loader.Options{
			Base:    base,
			Reset:   in.Reset,
			List:    in.List,
			AutoRun: in.AutoRun,
		})
		if err != nil {
			return nil, err
		}
		s.recordProgram(ctx, in.Program, res)
		return textResult(res.Summary()), nil
	})

	addTool(s, &mcp.Tool{
		Name:        "tokenize_basic",
		Description: "Tokenize a BASIC program without touching the machine and return the memory image as hex",
	}, func(ctx context.Context, in tokenizeArgs) (*mcp.CallToolResult, error) {
		base, err := loadAddress(in.Address)
		if err != nil {
			return nil, err
		}
		img, err := basic.EncodeSource(in.Program, base)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d lines, %d bytes at $%04X, end of program $%04X\n", img.Lines, len(img.Bytes), img.Base, img.End)
		sb.WriteString(img.Hex())
		if in.IncludePRG {
			sb.WriteString("\nPRG: ")
			sb.WriteString(base64.StdEncoding.EncodeToString(img.PRG()))
		}
		return textResult(sb.String()), nil
	})

	addTool(s, &mcp.Tool{
		Name:        "list_basic_program",
		Description: "Read the BASIC program currently in memory and list it",
	}, func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
		listing, err := s.loader.ReadProgram(ctx)
		if err != nil {
			return nil, err
		}
		if len(listing.Lines) == 0 {
			return textResult("Program is empty"), nil
		}
		return textResult(listing.String()), nil
	})

	addTool(s, &mcp.Tool{
		Name:        "program_history",
		Description: "List the BASIC programs recently entered through this server",
		InputSchema: inputSchema[historyArgs](func(p map[string]*jsonschema.Schema) {
			p["limit"].Minimum, p["limit"].Maximum = bounds(1, 100)
		}),
	}, func(ctx context.Context, in historyArgs) (*mcp.CallToolResult, error) {
		if s.store == nil {
			return nil, errors.New("program history is disabled")
		}
		if in.ID != "" {
			rec, err := s.store.Program(ctx, in.ID)
			if err != nil {
				return nil, err
			}
			return jsonResult(rec)
		}
		records, err := s.store.RecentPrograms(ctx, s.limit(in.Limit))
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return textResult("No programs entered yet"), nil
		}
		return jsonResult(records)
	})

	addTool(s, &mcp.Tool{
		Name:        "tool_call_history",
		Description: "List the most recent tool calls with their outcome and duration",
		InputSchema: inputSchema[toolCallArgs](func(p map[string]*jsonschema.Schema) {
			p["limit"].Minimum, p["limit"].Maximum = bounds(1, 100)
		}),
	}, func(ctx context.Context, in toolCallArgs) (*mcp.CallToolResult, error) {
		if s.store == nil {
			return nil, errors.New("tool call history is disabled")
		}
		calls, err := s.store.RecentToolCalls(ctx, s.limit(in.Limit))
		if err != nil {
			return nil, err
		}
		if len(calls) == 0 {
			return textResult("No tool calls recorded yet"), nil
		}
		return jsonResult(calls)
	})
}

func (s *Server) limit(requested *int) int {
	if requested != nil {
		return *requested
	}
	return s.historyLimit
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return textResult(string(data)), nil
}

// recordProgram keeps the program in the history and tells the monitor.
// Failures are logged only, the program is already in memory.
func (s *Server) recordProgram(ctx context.Context, source string, res *loader.Result) {
	img := res.Image
	if s.store != nil {
		rec := &store.ProgramRecord{
			Source:  source,
			Lines:   img.Lines,
			Size:    len(img.Bytes),
			Base:    img.Base,
			End:     img.End,
			AutoRun: len(res.Typed) > 0 && strings.HasSuffix(string(res.Typed), "RUN\r"),
		}
		if err := s.store.SaveProgram(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn(logger.AreaDatabase, "Saving program failed: %v", err)
		}
	}
	s.hub.Publish(monitor.Event{
		Type:      monitor.EventProgram,
		Time:      time.Now(),
		OK:        true,
		Content:   res.Summary(),
		SessionID: auth.SessionIDFromContext(ctx),
	})
}
