package mcpserver

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/antibyte/c64mcp/pkg/device"
)

type writeMemoryArgs struct {
	Address string `json:"address" jsonschema:"start address in hex, for example 0400 or $D020"`
	Data    string `json:"data" jsonschema:"bytes to write as a hex string, for example 0102FF"`
}

type writeBinaryArgs struct {
	Address string `json:"address" jsonschema:"start address in hex"`
	Data    string `json:"data" jsonschema:"bytes to write as base64 or a data URL"`
}

type readMemoryArgs struct {
	Address string `json:"address" jsonschema:"start address in hex"`
	Length  *int   `json:"length,omitempty" jsonschema:"number of bytes to read, default 256"`
}

// parseHexData accepts hex with optional whitespace and a 0x or $ prefix
func parseHexData(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "$")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrInvalidData, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no bytes given", device.ErrInvalidData)
	}
	return data, nil
}

func (s *Server) registerMemoryTools() {
	addTool(s, &mcp.Tool{
		Name:        "write_memory",
		Description: "Write bytes given as hex into C64 memory using DMA",
	}, func(ctx context.Context, in writeMemoryArgs) (*mcp.CallToolResult, error) {
		addr, err := device.ParseAddress(in.Address)
		if err != nil {
			return nil, err
		}
		data, err := parseHexData(in.Data)
		if err != nil {
			return nil, err
		}
		if err := s.dev.WriteMemory(ctx, addr, data); err != nil {
			return nil, err
		}
		return textResultf("Wrote %d bytes to $%s", len(data), device.FormatAddress(addr)), nil
	})

	addTool(s, &mcp.Tool{
		Name:        "write_memory_binary",
		Description: "Write base64 encoded bytes into C64 memory using DMA",
	}, func(ctx context.Context, in writeBinaryArgs) (*mcp.CallToolResult, error) {
		addr, err := device.ParseAddress(in.Address)
		if err != nil {
			return nil, err
		}
		data, err := device.DecodeUpload(in.Data)
		if err != nil {
			return nil, err
		}
		if err := s.dev.WriteMemory(ctx, addr, data); err != nil {
			return nil, err
		}
		return textResultf("Wrote %d bytes to $%s", len(data), device.FormatAddress(addr)), nil
	})

	addTool(s, &mcp.Tool{
		Name:        "read_memory",
		Description: "Read C64 memory using DMA and return it as hex",
		InputSchema: inputSchema[readMemoryArgs](func(p map[string]*jsonschema.Schema) {
			p["length"].Minimum, p["length"].Maximum = bounds(1, 65536)
		}),
	}, func(ctx context.Context, in readMemoryArgs) (*mcp.CallToolResult, error) {
		addr, err := device.ParseAddress(in.Address)
		if err != nil {
			return nil, err
		}
		length := device.DefaultReadLength
		if in.Length != nil {
			length = *in.Length
		}
		data, err := s.dev.ReadMemory(ctx, addr, length)
		if err != nil {
			return nil, err
		}
		return textResultf("Read %d bytes from $%s: %s", len(data), device.FormatAddress(addr), hex.EncodeToString(data)), nil
	})
}
