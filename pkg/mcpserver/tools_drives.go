package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/antibyte/c64mcp/pkg/device"
)

var (
	driveIDs    = []string{"a", "b"}
	imageTypes  = []string{"d64", "g64", "d71", "g71", "d81"}
	mountModes  = []string{"readwrite", "readonly", "unlinked"}
	driveModes  = []string{"1541", "1571", "1581"}
	streamNames = []string{"video", "audio", "debug"}
)

type driveArgs struct {
	Drive string `json:"drive" jsonschema:"drive id"`
}

type mountFileArgs struct {
	Drive string `json:"drive" jsonschema:"drive id"`
	Image string `json:"image" jsonschema:"path of the disk image on the Ultimate file system"`
	Type  string `json:"type,omitempty" jsonschema:"image type, guessed from the extension when omitted"`
	Mode  string `json:"mode,omitempty" jsonschema:"mount mode"`
}

type mountUploadArgs struct {
	Drive string `json:"drive" jsonschema:"drive id"`
	Data  string `json:"data" jsonschema:"disk image as base64 or a data URL"`
	Type  string `json:"type,omitempty" jsonschema:"image type"`
	Mode  string `json:"mode,omitempty" jsonschema:"mount mode"`
}

type driveFileArgs struct {
	Drive string `json:"drive" jsonschema:"drive id"`
	File  string `json:"file" jsonschema:"path of the ROM file on the Ultimate file system"`
}

type driveUploadArgs struct {
	Drive string `json:"drive" jsonschema:"drive id"`
	Data  string `json:"data" jsonschema:"ROM image as base64 or a data URL"`
}

type driveModeArgs struct {
	Drive string `json:"drive" jsonschema:"drive id"`
	Mode  string `json:"mode" jsonschema:"drive type to emulate"`
}

type streamStartArgs struct {
	Stream string `json:"stream" jsonschema:"stream to start"`
	IP     string `json:"ip" jsonschema:"destination host, optionally with :port"`
}

type streamArgs struct {
	Stream string `json:"stream" jsonschema:"stream to stop"`
}

type pathArgs struct {
	Path string `json:"path" jsonschema:"path on the Ultimate file system"`
}

type createD64Args struct {
	Path     string `json:"path" jsonschema:"where to create the image"`
	Tracks   *int   `json:"tracks,omitempty" jsonschema:"number of tracks, 35 or 40, default 35"`
	DiskName string `json:"diskname,omitempty" jsonschema:"disk name"`
}

type createDiskArgs struct {
	Path     string `json:"path" jsonschema:"where to create the image"`
	DiskName string `json:"diskname,omitempty" jsonschema:"disk name"`
}

type createDNPArgs struct {
	Path     string `json:"path" jsonschema:"where to create the image"`
	Tracks   int    `json:"tracks" jsonschema:"number of tracks, up to 255"`
	DiskName string `json:"diskname,omitempty" jsonschema:"disk name"`
}

func driveEnum(p map[string]*jsonschema.Schema) {
	p["drive"].Enum = enumOf(driveIDs...)
}

func (s *Server) registerDriveTools() {
	addTool(s, &mcp.Tool{
		Name:        "list_drives",
		Description: "List the emulated drives and the images mounted in them",
	}, func(ctx context.Context, _ noArgs) (*mcp.CallToolResult, error) {
		return passThrough(s.dev.Drives(ctx))
	})

	addTool(s, &mcp.Tool{
		Name:        "mount_disk_file",
		Description: "Mount a disk image from the Ultimate file system",
		InputSchema: inputSchema[mountFileArgs](func(p map[string]*jsonschema.Schema) {
			driveEnum(p)
			p["type"].Enum = enumOf(imageTypes...)
			p["mode"].Enum = enumOf(mountModes...)
		}),
	}, func(ctx context.Context, in mountFileArgs) (*mcp.CallToolResult, error) {
		body, err := s.dev.MountFile(ctx, in.Drive, in.Image, device.MountOptions{Type: in.Type, Mode: in.Mode})
		return withDefault(fmt.Sprintf("Disk mounted on drive %s", in.Drive))(body, err)
	})

	addTool(s, &mcp.Tool{
		Name:        "mount_disk_upload",
		Description: "Upload a disk image and mount it",
		InputSchema: inputSchema[mountUploadArgs](func(p map[string]*jsonschema.Schema) {
			driveEnum(p)
			p["type"].Enum = enumOf(imageTypes...)
			p["mode"].Enum = enumOf(mountModes...)
		}),
	}, func(ctx context.Context, in mountUploadArgs) (*mcp.CallToolResult, error) {
		data, err := device.DecodeUpload(in.Data)
		if err != nil {
			return nil, err
		}
		body, err := s.dev.MountUpload(ctx, in.Drive, data, device.MountOptions{Type: in.Type, Mode: in.Mode})
		return withDefault(fmt.Sprintf("Disk uploaded and mounted on drive %s", in.Drive))(body, err)
	})

	actions := []struct{ name, action, desc, done string }{
		{"drive_reset", "reset", "Reset a drive", "Drive %s reset"},
		{"drive_remove", "remove", "Remove the disk from a drive", "Disk removed from drive %s"},
		{"drive_on", "on", "Switch a drive on", "Drive %s enabled"},
		{"drive_off", "off", "Switch a drive off", "Drive %s disabled"},
	}
	for _, a := range actions {
		action, done := a.action, a.done
		addTool(s, &mcp.Tool{
			Name:        a.name,
			Description: a.desc,
			InputSchema: inputSchema[driveArgs](driveEnum),
		}, func(ctx context.Context, in driveArgs) (*mcp.CallToolResult, error) {
			body, err := s.dev.DriveAction(ctx, in.Drive, action)
			return withDefault(fmt.Sprintf(done, in.Drive))(body, err)
		})
	}

	addTool(s, &mcp.Tool{
		Name:        "drive_load_rom_file",
		Description: "Load a drive ROM from the Ultimate file system",
		InputSchema: inputSchema[driveFileArgs](driveEnum),
	}, func(ctx context.Context, in driveFileArgs) (*mcp.CallToolResult, error) {
		body, err := s.dev.DriveLoadROMFile(ctx, in.Drive, in.File)
		return withDefault(fmt.Sprintf("ROM loaded for drive %s", in.Drive))(body, err)
	})

	addTool(s, &mcp.Tool{
		Name:        "drive_load_rom_upload",
		Description: "Upload a drive ROM and load it",
		InputSchema: inputSchema[driveUploadArgs](driveEnum),
	}, func(ctx context.Context, in driveUploadArgs) (*mcp.CallToolResult, error) {
		data, err := device.DecodeUpload(in.Data)
		if err != nil {
			return nil, err
		}
		body, err := s.dev.DriveLoadROMUpload(ctx, in.Drive, data)
		return withDefault(fmt.Sprintf("ROM uploaded and loaded for drive %s", in.Drive))(body, err)
	})

	addTool(s, &mcp.Tool{
		Name:        "drive_set_mode",
		Description: "Change the drive type a drive emulates",
		InputSchema: inputSchema[driveModeArgs](func(p map[string]*jsonschema.Schema) {
			driveEnum(p)
			p["mode"].Enum = enumOf(driveModes...)
		}),
	}, func(ctx context.Context, in driveModeArgs) (*mcp.CallToolResult, error) {
		body, err := s.dev.DriveSetMode(ctx, in.Drive, in.Mode)
		return withDefault(fmt.Sprintf("Drive %s mode set to %s", in.Drive, in.Mode))(body, err)
	})

	addTool(s, &mcp.Tool{
		Name:        "stream_start",
		Description: "Start sending a video, audio or debug stream to a host (Ultimate 64 only)",
		InputSchema: inputSchema[streamStartArgs](func(p map[string]*jsonschema.Schema) {
			p["stream"].Enum = enumOf(streamNames...)
		}),
	}, func(ctx context.Context, in streamStartArgs) (*mcp.CallToolResult, error) {
		body, err := s.dev.StreamStart(ctx, in.Stream, in.IP)
		return withDefault(fmt.Sprintf("Stream %s started to %s", in.Stream, in.IP))(body, err)
	})

	addTool(s, &mcp.Tool{
		Name:        "stream_stop",
		Description: "Stop a stream (Ultimate 64 only)",
		InputSchema: inputSchema[streamArgs](func(p map[string]*jsonschema.Schema) {
			p["stream"].Enum = enumOf(streamNames...)
		}),
	}, func(ctx context.Context, in streamArgs) (*mcp.CallToolResult, error) {
		body, err := s.dev.StreamStop(ctx, in.Stream)
		return withDefault(fmt.Sprintf("Stream %s stopped", in.Stream))(body, err)
	})

	addTool(s, &mcp.Tool{
		Name:        "get_file_info",
		Description: "Get information about a file on the Ultimate file system",
	}, func(ctx context.Context, in pathArgs) (*mcp.CallToolResult, error) {
		return passThrough(s.dev.FileInfo(ctx, in.Path))
	})

	addTool(s, &mcp.Tool{
		Name:        "create_d64",
		Description: "Create an empty D64 disk image",
		InputSchema: inputSchema[createD64Args](func(p map[string]*jsonschema.Schema) {
			p["tracks"].Minimum, p["tracks"].Maximum = bounds(35, 40)
		}),
	}, func(ctx context.Context, in createD64Args) (*mcp.CallToolResult, error) {
		body, err := s.dev.CreateDiskImage(ctx, device.DiskD64, in.Path, device.CreateDiskOptions{Tracks: in.Tracks, DiskName: in.DiskName})
		return withDefault(fmt.Sprintf("D64 image created at %s", in.Path))(body, err)
	})

	for _, f := range []device.DiskFormat{device.DiskD71, device.DiskD81} {
		format := f
		upper := strings.ToUpper(string(format))
		addTool(s, &mcp.Tool{
			Name:        "create_" + string(format),
			Description: "Create an empty " + upper + " disk image",
		}, func(ctx context.Context, in createDiskArgs) (*mcp.CallToolResult, error) {
			body, err := s.dev.CreateDiskImage(ctx, format, in.Path, device.CreateDiskOptions{DiskName: in.DiskName})
			return withDefault(fmt.Sprintf("%s image created at %s", upper, in.Path))(body, err)
		})
	}

	addTool(s, &mcp.Tool{
		Name:        "create_dnp",
		Description: "Create an empty DNP (CMD native partition) disk image",
		InputSchema: inputSchema[createDNPArgs](func(p map[string]*jsonschema.Schema) {
			p["tracks"].Minimum, p["tracks"].Maximum = bounds(1, 255)
		}),
	}, func(ctx context.Context, in createDNPArgs) (*mcp.CallToolResult, error) {
		tracks := in.Tracks
		body, err := s.dev.CreateDiskImage(ctx, device.DiskDNP, in.Path, device.CreateDiskOptions{Tracks: &tracks, DiskName: in.DiskName})
		return withDefault(fmt.Sprintf("DNP image created at %s", in.Path))(body, err)
	})
}
