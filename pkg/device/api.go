package device

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Runner names the /v1/runners endpoints
type Runner string

const (
	RunnerSIDPlay Runner = "sidplay"
	RunnerMODPlay Runner = "modplay"
	RunnerLoadPRG Runner = "load_prg"
	RunnerRunPRG  Runner = "run_prg"
	RunnerRunCRT  Runner = "run_crt"
)

// DiskFormat names the disk image kinds the device can create
type DiskFormat string

const (
	DiskD64 DiskFormat = "d64"
	DiskD71 DiskFormat = "d71"
	DiskD81 DiskFormat = "d81"
	DiskDNP DiskFormat = "dnp"
)

// Version returns the raw version document
func (c *Client) Version(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/v1/version", nil)
	return string(body), err
}

// RunFile starts a runner on a file that already lives on the device.
// extra carries runner specific parameters such as songnr.
func (c *Client) RunFile(ctx context.Context, runner Runner, file string, extra url.Values) (string, error) {
	query := url.Values{}
	for k, v := range extra {
		query[k] = v
	}
	query.Set("file", file)
	return c.put(ctx, "/v1/runners:"+string(runner), query)
}

// RunUpload uploads data and hands it to a runner
func (c *Client) RunUpload(ctx context.Context, runner Runner, data []byte, extra url.Values) (string, error) {
	return c.post(ctx, "/v1/runners:"+string(runner), extra, data)
}

// SongQuery builds the optional songnr parameter of the SID player
func SongQuery(song *int) url.Values {
	if song == nil {
		return nil
	}
	return url.Values{"songnr": {strconv.Itoa(*song)}}
}

// ConfigCategories lists all configuration categories
func (c *Client) ConfigCategories(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/v1/configs", nil)
	return string(body), err
}

// ConfigCategory returns all items of a category
func (c *Client) ConfigCategory(ctx context.Context, category string) (string, error) {
	body, err := c.get(ctx, "/v1/configs/"+url.PathEscape(category), nil)
	return string(body), err
}

// ConfigItem returns one configuration item
func (c *Client) ConfigItem(ctx context.Context, category, item string) (string, error) {
	body, err := c.get(ctx, "/v1/configs/"+url.PathEscape(category)+"/"+url.PathEscape(item), nil)
	return string(body), err
}

// SetConfigItem changes one configuration item
func (c *Client) SetConfigItem(ctx context.Context, category, item, value string) (string, error) {
	return c.put(ctx, "/v1/configs/"+url.PathEscape(category)+"/"+url.PathEscape(item), url.Values{"value": {value}})
}

// SetConfigBatch posts several settings as one JSON document
func (c *Client) SetConfigBatch(ctx context.Context, settings map[string]any) (string, error) {
	payload, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("encoding settings: %w", err)
	}
	body, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/v1/configs",
		body:        payload,
		contentType: "application/json",
	})
	return string(body), err
}

// LoadConfigFromFlash restores the configuration from flash
func (c *Client) LoadConfigFromFlash(ctx context.Context) (string, error) {
	return c.put(ctx, "/v1/configs:load_from_flash", nil)
}

// SaveConfigToFlash stores the configuration in flash
func (c *Client) SaveConfigToFlash(ctx context.Context) (string, error) {
	return c.put(ctx, "/v1/configs:save_to_flash", nil)
}

// ResetConfigToDefault restores factory defaults
func (c *Client) ResetConfigToDefault(ctx context.Context) (string, error) {
	return c.put(ctx, "/v1/configs:reset_to_default", nil)
}

func (c *Client) machine(ctx context.Context, action string) (string, error) {
	return c.put(ctx, "/v1/machine:"+action, nil)
}

// Reset sends the reset signal to the C64
func (c *Client) Reset(ctx context.Context) (string, error) { return c.machine(ctx, "reset") }

// Reboot restarts the whole device
func (c *Client) Reboot(ctx context.Context) (string, error) { return c.machine(ctx, "reboot") }

// Pause halts the CPU via the DMA line
func (c *Client) Pause(ctx context.Context) (string, error) { return c.machine(ctx, "pause") }

// Resume continues a paused machine
func (c *Client) Resume(ctx context.Context) (string, error) { return c.machine(ctx, "resume") }

// PowerOff switches the machine off (U64 only)
func (c *Client) PowerOff(ctx context.Context) (string, error) { return c.machine(ctx, "poweroff") }

// ReadMemory reads length bytes starting at addr
func (c *Client) ReadMemory(ctx context.Context, addr uint16, length int) ([]byte, error) {
	if length <= 0 {
		length = DefaultReadLength
	}
	if int(addr)+length > 0x10000 {
		return nil, fmt.Errorf("%w: $%04X+%d", ErrAddressRange, addr, length)
	}
	body, err := c.get(ctx, "/v1/machine:readmem", url.Values{
		"address": {FormatAddress(addr)},
		"length":  {strconv.Itoa(length)},
	})
	if err != nil {
		return nil, err
	}
	if len(body) < length {
		return nil, fmt.Errorf("%w: $%04X got %d of %d", ErrShortRead, addr, len(body), length)
	}
	return body[:length], nil
}

// WriteMemory writes data via DMA starting at addr
func (c *Client) WriteMemory(ctx context.Context, addr uint16, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if int(addr)+len(data) > 0x10000 {
		return fmt.Errorf("%w: $%04X+%d", ErrAddressRange, addr, len(data))
	}
	_, err := c.post(ctx, "/v1/machine:writemem", url.Values{"address": {FormatAddress(addr)}}, data)
	return err
}

// DebugRegister reads the debug register (U64 only)
func (c *Client) DebugRegister(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/v1/machine:debugreg", nil)
	return string(body), err
}

// SetDebugRegister writes the debug register (U64 only)
func (c *Client) SetDebugRegister(ctx context.Context, value int) (string, error) {
	return c.put(ctx, "/v1/machine:debugreg", url.Values{"value": {strconv.Itoa(value)}})
}

// MountOptions are the optional parameters of a mount request
type MountOptions struct {
	Type string
	Mode string
}

func (o MountOptions) query() url.Values {
	q := url.Values{}
	if o.Type != "" {
		q.Set("type", o.Type)
	}
	if o.Mode != "" {
		q.Set("mode", o.Mode)
	}
	return q
}

func drivePath(drive, action string) string {
	return "/v1/drives/" + url.PathEscape(drive) + ":" + action
}

// Drives lists the floppy drives and their mounted images
func (c *Client) Drives(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/v1/drives", nil)
	return string(body), err
}

// MountFile mounts an image that lives on the device
func (c *Client) MountFile(ctx context.Context, drive, image string, opts MountOptions) (string, error) {
	q := opts.query()
	q.Set("image", image)
	return c.put(ctx, drivePath(drive, "mount"), q)
}

// MountUpload uploads an image and mounts it
func (c *Client) MountUpload(ctx context.Context, drive string, data []byte, opts MountOptions) (string, error) {
	return c.post(ctx, drivePath(drive, "mount"), opts.query(), data)
}

// DriveAction runs a parameterless drive action (reset, remove, on, off)
func (c *Client) DriveAction(ctx context.Context, drive, action string) (string, error) {
	switch action {
	case "reset", "remove", "on", "off":
	default:
		return "", fmt.Errorf("unknown drive action %q", action)
	}
	return c.put(ctx, drivePath(drive, action), nil)
}

// DriveLoadROMFile loads a drive ROM from the device file system
func (c *Client) DriveLoadROMFile(ctx context.Context, drive, file string) (string, error) {
	return c.put(ctx, drivePath(drive, "load_rom"), url.Values{"file": {file}})
}

// DriveLoadROMUpload uploads a drive ROM
func (c *Client) DriveLoadROMUpload(ctx context.Context, drive string, data []byte) (string, error) {
	return c.post(ctx, drivePath(drive, "load_rom"), nil, data)
}

// DriveSetMode switches the emulated drive type (1541, 1571, 1581)
func (c *Client) DriveSetMode(ctx context.Context, drive, mode string) (string, error) {
	return c.put(ctx, drivePath(drive, "set_mode"), url.Values{"mode": {mode}})
}

// StreamStart starts a video, audio or debug stream towards ip (U64 only)
func (c *Client) StreamStart(ctx context.Context, stream, ip string) (string, error) {
	return c.put(ctx, "/v1/streams/"+url.PathEscape(stream)+":start", url.Values{"ip": {ip}})
}

// StreamStop stops a stream (U64 only)
func (c *Client) StreamStop(ctx context.Context, stream string) (string, error) {
	return c.put(ctx, "/v1/streams/"+url.PathEscape(stream)+":stop", nil)
}

// FileInfo returns metadata of a file on the device
func (c *Client) FileInfo(ctx context.Context, path string) (string, error) {
	body, err := c.get(ctx, "/v1/files/"+escapePath(path)+":info", nil)
	return string(body), err
}

// CreateDiskOptions are the optional parameters of a create request.
// DNP images require Tracks.
type CreateDiskOptions struct {
	Tracks   *int
	DiskName string
}

// CreateDiskImage creates an empty disk image at path
func (c *Client) CreateDiskImage(ctx context.Context, format DiskFormat, path string, opts CreateDiskOptions) (string, error) {
	q := url.Values{}
	switch format {
	case DiskD64, DiskDNP:
		if opts.Tracks != nil {
			q.Set("tracks", strconv.Itoa(*opts.Tracks))
		} else if format == DiskDNP {
			return "", fmt.Errorf("dnp images need a track count")
		}
	case DiskD71, DiskD81:
	default:
		return "", fmt.Errorf("unknown disk format %q", format)
	}
	if opts.DiskName != "" {
		q.Set("diskname", opts.DiskName)
	}
	return c.put(ctx, "/v1/files/"+escapePath(path)+":create_"+string(format), q)
}
