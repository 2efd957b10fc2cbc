package screen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/antibyte/c64mcp/pkg/logger"
	"github.com/antibyte/c64mcp/pkg/petscii"
)

const (
	Columns = 40
	Rows    = 25
	Width   = Columns * 8
	Height  = Rows * 8

	// BorderSize is the border width drawn around the 320x200 area
	BorderSize = 32
	MaxScale   = 4

	cells      = Columns * Rows
	colorRAM   = 0xD800
	cia2PortA  = 0xDD00
	vicBase    = 0xD000
	bitmapSize = 8000
	charsetLen = 2048
)

// Palette holds the 16 VIC-II colours
var Palette = [16]color.RGBA{
	{0x00, 0x00, 0x00, 0xFF}, // black
	{0xFF, 0xFF, 0xFF, 0xFF}, // white
	{0x88, 0x00, 0x00, 0xFF}, // red
	{0xAA, 0xFF, 0xEE, 0xFF}, // cyan
	{0xCC, 0x44, 0xCC, 0xFF}, // purple
	{0x00, 0xCC, 0x55, 0xFF}, // green
	{0x00, 0x00, 0xAA, 0xFF}, // blue
	{0xEE, 0xEE, 0x77, 0xFF}, // yellow
	{0xDD, 0x88, 0x55, 0xFF}, // orange
	{0x66, 0x44, 0x00, 0xFF}, // brown
	{0xFF, 0x77, 0x77, 0xFF}, // light red
	{0x33, 0x33, 0x33, 0xFF}, // dark grey
	{0x77, 0x77, 0x77, 0xFF}, // grey
	{0xAA, 0xFF, 0x66, 0xFF}, // light green
	{0x00, 0x88, 0xFF, 0xFF}, // light blue
	{0xBB, 0xBB, 0xBB, 0xFF}, // light grey
}

// Device is what the reader needs from the C64
type Device interface {
	ReadMemory(ctx context.Context, addr uint16, length int) ([]byte, error)
	Pause(ctx context.Context) (string, error)
	Resume(ctx context.Context) (string, error)
}

// Snapshot is everything needed to render the screen in any mode
type Snapshot struct {
	Info    Info
	Screen  []byte
	Color   []byte
	Charset []byte // nil when the character ROM is in use, see ROMCharset
	Bitmap  []byte
}

// Reader takes snapshots with the machine paused
type Reader struct {
	dev Device
}

// NewReader creates a Reader
func NewReader(dev Device) *Reader {
	return &Reader{dev: dev}
}

// paused runs fn while the CPU is halted and always resumes it
func (r *Reader) paused(ctx context.Context, fn func() error) (err error) {
	if _, err := r.dev.Pause(ctx); err != nil {
		return fmt.Errorf("pausing machine: %w", err)
	}
	defer func() {
		if _, resumeErr := r.dev.Resume(context.WithoutCancel(ctx)); resumeErr != nil {
			logger.Error(logger.AreaScreen, "Resume after screen read failed: %v", resumeErr)
			if err == nil {
				err = fmt.Errorf("resuming machine: %w", resumeErr)
			}
		}
	}()
	return fn()
}

func (r *Reader) readInfo(ctx context.Context) (Info, error) {
	vic, err := r.dev.ReadMemory(ctx, vicBase, VICRegisterCount)
	if err != nil {
		return Info{}, fmt.Errorf("reading VIC registers: %w", err)
	}
	cia, err := r.dev.ReadMemory(ctx, cia2PortA, 1)
	if err != nil {
		return Info{}, fmt.Errorf("reading CIA 2: %w", err)
	}
	return Detect(vic, cia[0])
}

// Detect returns the active mode and memory layout
func (r *Reader) Detect(ctx context.Context) (Info, error) {
	var info Info
	err := r.paused(ctx, func() error {
		var err error
		info, err = r.readInfo(ctx)
		return err
	})
	return info, err
}

// Snapshot reads registers, screen, colour RAM, bitmap and a RAM charset
func (r *Reader) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := r.paused(ctx, func() error {
		info, err := r.readInfo(ctx)
		if err != nil {
			return err
		}
		snap.Info = info

		if snap.Color, err = r.dev.ReadMemory(ctx, colorRAM, cells); err != nil {
			return fmt.Errorf("reading colour RAM: %w", err)
		}
		if snap.Screen, err = r.dev.ReadMemory(ctx, uint16(info.Screen), cells); err != nil {
			return fmt.Errorf("reading screen RAM: %w", err)
		}
		if snap.Bitmap, err = r.dev.ReadMemory(ctx, uint16(info.Bitmap), bitmapSize); err != nil {
			return fmt.Errorf("reading bitmap: %w", err)
		}
		if !info.ROMCharset {
			if snap.Charset, err = r.dev.ReadMemory(ctx, uint16(info.Charset), charsetLen); err != nil {
				return fmt.Errorf("reading charset: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Debug(logger.AreaScreen, "Snapshot taken: %s", snap.Info.Summary())
	return snap, nil
}

// ReadText transcribes the text screen without pausing the machine. It is
// meant for polling, so a frame may be torn.
func (r *Reader) ReadText(ctx context.Context) (string, error) {
	info, err := r.readInfo(ctx)
	if err != nil {
		return "", err
	}
	if info.Mode.Bitmap() {
		return "", fmt.Errorf("screen is in %s mode", info.Mode.Name())
	}
	screenRAM, err := r.dev.ReadMemory(ctx, uint16(info.Screen), cells)
	if err != nil {
		return "", fmt.Errorf("reading screen RAM: %w", err)
	}
	return (&Snapshot{Info: info, Screen: screenRAM}).Text(), nil
}

// Text transcribes screen RAM into 25 lines, trailing spaces removed
func (s *Snapshot) Text() string {
	var sb strings.Builder
	for row := 0; row < Rows; row++ {
		line := make([]rune, Columns)
		for col := 0; col < Columns; col++ {
			code := s.Screen[row*Columns+col]
			if s.Info.Mode == ExtendedBackground {
				code &= 0x3F
			}
			line[col] = petscii.ScreenCodeToRune(code)
		}
		sb.WriteString(strings.TrimRight(string(line), " "))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// RenderOptions control the size of the image
type RenderOptions struct {
	Scale  int
	Border bool
}

func (o RenderOptions) normalized() RenderOptions {
	if o.Scale < 1 {
		o.Scale = 1
	}
	if o.Scale > MaxScale {
		o.Scale = MaxScale
	}
	return o
}

// canvas draws scaled C64 pixels inside an optional border
type canvas struct {
	img    *image.RGBA
	scale  int
	offset int
}

func newCanvas(opts RenderOptions, border byte) *canvas {
	offset := 0
	if opts.Border {
		offset = BorderSize
	}
	w := (Width + 2*offset) * opts.Scale
	h := (Height + 2*offset) * opts.Scale
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := Palette[border&0x0F]
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = fill.R, fill.G, fill.B, fill.A
	}
	return &canvas{img: img, scale: opts.Scale, offset: offset}
}

func (c *canvas) set(x, y int, colour byte) {
	px := Palette[colour&0x0F]
	x0 := (x + c.offset) * c.scale
	y0 := (y + c.offset) * c.scale
	for dy := 0; dy < c.scale; dy++ {
		for dx := 0; dx < c.scale; dx++ {
			c.img.SetRGBA(x0+dx, y0+dy, px)
		}
	}
}

// Render draws the snapshot as if the VIC-II were in mode
func (s *Snapshot) Render(mode Mode, opts RenderOptions) (*image.RGBA, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("cannot render %s", mode.Name())
	}
	charset := s.Charset
	if charset == nil {
		charset = ROMCharset(s.Info.Charset)
	}
	opts = opts.normalized()
	c := newCanvas(opts, s.Info.Border)
	bg := s.Info.Backgrounds

	for cell := 0; cell < cells; cell++ {
		cx, cy := (cell%Columns)*8, (cell/Columns)*8
		scr, col := s.Screen[cell], s.Color[cell]&0x0F

		switch mode {
		case StandardBitmap:
			drawHires(c, cx, cy, s.Bitmap[cell*8:cell*8+8], scr>>4, scr&0x0F)
		case MulticolorBitmap:
			drawMulti(c, cx, cy, s.Bitmap[cell*8:cell*8+8], [4]byte{bg[0], scr >> 4, scr & 0x0F, col})
		case ExtendedBackground:
			glyph := glyphAt(charset, scr&0x3F)
			drawHires(c, cx, cy, glyph, col, bg[scr>>6])
		case MulticolorText:
			glyph := glyphAt(charset, scr)
			if col&0x08 != 0 {
				drawMulti(c, cx, cy, glyph, [4]byte{bg[0], bg[1], bg[2], col & 0x07})
			} else {
				drawHires(c, cx, cy, glyph, col, bg[0])
			}
		default:
			drawHires(c, cx, cy, glyphAt(charset, scr), col, bg[0])
		}
	}
	return c.img, nil
}

func glyphAt(charset []byte, code byte) []byte {
	off := int(code) * 8
	return charset[off : off+8]
}

func drawHires(c *canvas, x, y int, rows []byte, fg, bg byte) {
	for row, bits := range rows {
		for col := 0; col < 8; col++ {
			colour := bg
			if bits&(0x80>>col) != 0 {
				colour = fg
			}
			c.set(x+col, y+row, colour)
		}
	}
}

func drawMulti(c *canvas, x, y int, rows []byte, colours [4]byte) {
	for row, bits := range rows {
		for pair := 0; pair < 4; pair++ {
			colour := colours[(bits>>(6-2*pair))&0x03]
			c.set(x+pair*2, y+row, colour)
			c.set(x+pair*2+1, y+row, colour)
		}
	}
}

// EncodePNG encodes an image as PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
