package mcpserver

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/antibyte/c64mcp/pkg/device"
)

type fileArgs struct {
	File string `json:"file" jsonschema:"path of the file on the Ultimate file system"`
}

type uploadArgs struct {
	Data string `json:"data" jsonschema:"file contents as base64 or a data URL"`
}

type sidFileArgs struct {
	File   string `json:"file" jsonschema:"path of the SID file on the Ultimate file system"`
	SongNr *int   `json:"songnr,omitempty" jsonschema:"song number to play, default is the file's start song"`
}

type sidUploadArgs struct {
	Data   string `json:"data" jsonschema:"SID file as base64 or a data URL"`
	SongNr *int   `json:"songnr,omitempty" jsonschema:"song number to play, default is the file's start song"`
}

type categoryArgs struct {
	Category string `json:"category" jsonschema:"configuration category, for example 'Drive A Settings'"`
}

type itemArgs struct {
	Category string `json:"category" jsonschema:"configuration category"`
	Item     string `json:"item" jsonschema:"item within the category"`
}

type setItemArgs struct {
	Category string `json:"category" jsonschema:"configuration category"`
	Item     string `json:"item" jsonschema:"item within the category"`
	Value    string `json:"value" jsonschema:"new value"`
}

type batchArgs struct {
	Settings map[string]any `json:"settings" jsonschema:"object of category name to an object of item name and value"`
}

type debugRegisterArgs struct {
	Value int `json:"value" jsonschema:"value to write into the debug register"`
}

// runner describes one /v1/runners endpoint and its two tools
type runner struct {
	kind     device.Runner
	prefix   string
	what     string
	done     string
	withSong bool
}

var runners = []runner{
	{device.RunnerSIDPlay, "sidplay", "a SID tune", "SID playback started", true},
	{device.RunnerMODPlay, "modplay", "an Amiga MOD tune", "MOD playback started", false},
	{device.RunnerLoadPRG, "load_prg", "a program into memory without starting it", "Program loaded", false},
	{device.RunnerRunPRG, "run_prg", "a program and RUN it", "Program running", false},
	{device.RunnerRunCRT, "run_crt", "a cartridge image and start it", "Cartridge started", false},
}

func (s *Server) registerDeviceTools() {
	addTool(s, &mcp.Tool{
		Name:        "get_version",
		Description: "Get the REST API version of the C64 Ultimate",
	}, func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
		return passThrough(s.dev.Version(ctx))
	})

	for _, r := range runners {
		s.registerRunner(r)
	}

	addTool(s, &mcp.Tool{
		Name:        "list_config_categories",
		Description: "List all configuration categories of the Ultimate",
	}, func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
		return passThrough(s.dev.ConfigCategories(ctx))
	})

	addTool(s, &mcp.Tool{
		Name:        "get_config_category",
		Description: "Get all configuration items of a category",
	}, func(ctx context.Context, in categoryArgs) (*mcp.CallToolResult, error) {
		return passThrough(s.dev.ConfigCategory(ctx, in.Category))
	})

	addTool(s, &mcp.Tool{
		Name:        "get_config_item",
		Description: "Get one configuration item",
	}, func(ctx context.Context, in itemArgs) (*mcp.CallToolResult, error) {
		return passThrough(s.dev.ConfigItem(ctx, in.Category, in.Item))
	})

	addTool(s, &mcp.Tool{
		Name:        "set_config_item",
		Description: "Set one configuration item",
	}, func(ctx context.Context, in setItemArgs) (*mcp.CallToolResult, error) {
		return withDefault("Configuration updated")(s.dev.SetConfigItem(ctx, in.Category, in.Item, in.Value))
	})

	addTool(s, &mcp.Tool{
		Name:        "batch_set_config",
		Description: "Set several configuration items across categories in one request",
	}, func(ctx context.Context, in batchArgs) (*mcp.CallToolResult, error) {
		if len(in.Settings) == 0 {
			return nil, errors.New("settings must not be empty")
		}
		return withDefault("Configuration batch update complete")(s.dev.SetConfigBatch(ctx, in.Settings))
	})

	addTool(s, &mcp.Tool{
		Name:        "load_config_from_flash",
		Description: "Load the configuration stored in flash, discarding unsaved changes",
	}, func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
		return withDefault("Configuration loaded from flash")(s.dev.LoadConfigFromFlash(ctx))
	})

	addTool(s, &mcp.Tool{
		Name:        "save_config_to_flash",
		Description: "Save the current configuration to flash",
	}, func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
		return withDefault("Configuration saved to flash")(s.dev.SaveConfigToFlash(ctx))
	})

	addTool(s, &mcp.Tool{
		Name:        "reset_config_to_default",
		Description: "Reset the configuration to factory defaults (not saved to flash)",
	}, func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
		return withDefault("Configuration reset to defaults")(s.dev.ResetConfigToDefault(ctx))
	})

	machine := []struct {
		name, desc, done string
		call             func(context.Context) (string, error)
	}{
		{"machine_reset", "Reset the C64", "Machine reset", s.dev.Reset},
		{"machine_reboot", "Reboot the Ultimate including the cartridge emulation", "Machine rebooting", s.dev.Reboot},
		{"machine_pause", "Halt the C64 CPU", "Machine paused", s.dev.Pause},
		{"machine_resume", "Resume the C64 CPU after a pause", "Machine resumed", s.dev.Resume},
		{"machine_poweroff", "Switch the machine off (Ultimate 64 only)", "Machine powered off", s.dev.PowerOff},
	}
	for _, m := range machine {
		call, done := m.call, m.done
		addTool(s, &mcp.Tool{Name: m.name, Description: m.desc},
			func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
				return withDefault(done)(call(ctx))
			})
	}

	addTool(s, &mcp.Tool{
		Name:        "read_debug_register",
		Description: "Read the debug register $D7FF (Ultimate 64 only)",
	}, func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
		return passThrough(s.dev.DebugRegister(ctx))
	})

	addTool(s, &mcp.Tool{
		Name:        "write_debug_register",
		Description: "Write the debug register $D7FF (Ultimate 64 only)",
		InputSchema: inputSchema[debugRegisterArgs](func(p map[string]*jsonschema.Schema) {
			p["value"].Minimum, p["value"].Maximum = bounds(0, 255)
		}),
	}, func(ctx context.Context, in debugRegisterArgs) (*mcp.CallToolResult, error) {
		return withDefault("Debug register written")(s.dev.SetDebugRegister(ctx, in.Value))
	})
}

// registerRunner adds the <prefix>_file and <prefix>_upload tools
func (s *Server) registerRunner(r runner) {
	if r.withSong {
		addTool(s, &mcp.Tool{
			Name:        r.prefix + "_file",
			Description: "Play " + r.what + " from the Ultimate file system",
		}, func(ctx context.Context, in sidFileArgs) (*mcp.CallToolResult, error) {
			return withDefault(r.done)(s.dev.RunFile(ctx, r.kind, in.File, device.SongQuery(in.SongNr)))
		})
		addTool(s, &mcp.Tool{
			Name:        r.prefix + "_upload",
			Description: "Upload and play " + r.what,
		}, func(ctx context.Context, in sidUploadArgs) (*mcp.CallToolResult, error) {
			data, err := device.DecodeUpload(in.Data)
			if err != nil {
				return nil, err
			}
			return withDefault(r.done)(s.dev.RunUpload(ctx, r.kind, data, device.SongQuery(in.SongNr)))
		})
		return
	}

	verb := "Play "
	if r.kind != device.RunnerMODPlay {
		verb = "Load "
	}
	addTool(s, &mcp.Tool{
		Name:        r.prefix + "_file",
		Description: verb + r.what + " from the Ultimate file system",
	}, func(ctx context.Context, in fileArgs) (*mcp.CallToolResult, error) {
		return withDefault(r.done)(s.dev.RunFile(ctx, r.kind, in.File, nil))
	})
	addTool(s, &mcp.Tool{
		Name:        r.prefix + "_upload",
		Description: "Upload and " + lowerFirst(verb) + r.what,
	}, func(ctx context.Context, in uploadArgs) (*mcp.CallToolResult, error) {
		data, err := device.DecodeUpload(in.Data)
		if err != nil {
			return nil, err
		}
		return withDefault(r.done)(s.dev.RunUpload(ctx, r.kind, data, nil))
	})
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]|0x20) + s[1:]
}
