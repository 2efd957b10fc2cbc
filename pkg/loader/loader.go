// Package loader places tokenized BASIC programs into the memory of a
// running C64 and reads them back.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antibyte/c64mcp/pkg/basic"
	"github.com/antibyte/c64mcp/pkg/configuration"
	"github.com/antibyte/c64mcp/pkg/keyboard"
	"github.com/antibyte/c64mcp/pkg/logger"
	"github.com/antibyte/c64mcp/pkg/petscii"
)

// BASIC interpreter pointers in the zero page
const (
	TXTTAB uint16 = 0x002B // start of BASIC text
	VARTAB uint16 = 0x002D // start of variables, one past the program
	ARYTAB uint16 = 0x002F // start of arrays
	STREND uint16 = 0x0031 // end of arrays

	// programs may not reach into the BASIC ROM
	basicRAMEnd = 0xA000
)

var (
	ErrNoProgram   = errors.New("no BASIC program in memory")
	ErrProgramSize = errors.New("program does not fit into BASIC RAM")
)

// Device is what the loader needs from the C64
type Device interface {
	keyboard.Memory
	Reset(ctx context.Context) (string, error)
}

// Options control EnterProgram
type Options struct {
	Base    uint16 // load address, DefaultBase when zero
	Reset   bool   // reset the machine before writing
	List    bool   // type LIST afterwards
	AutoRun bool   // type RUN afterwards
}

// Result describes a program that was written to memory
type Result struct {
	Image    *basic.Image
	Typed    []byte // keystrokes injected after writing, if any
	Duration time.Duration
}

// Summary is the one-line report shown to users
func (r *Result) Summary() string {
	msg := fmt.Sprintf("BASIC program entered: %d lines, %d bytes at $%04X-$%04X, end of program $%04X",
		r.Image.Lines, len(r.Image.Bytes), r.Image.Base, r.Image.End-1, r.Image.End)
	if len(r.Typed) > 0 {
		msg += fmt.Sprintf(" - typed %q", printableKeys(r.Typed))
	}
	return msg
}

// Loader writes programs through a Device
type Loader struct {
	dev        Device
	keys       *keyboard.Typist
	resetDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a loader; the reset delay comes from the [Device] section
func New(dev Device, keys *keyboard.Typist) *Loader {
	return &Loader{
		dev:        dev,
		keys:       keys,
		resetDelay: configuration.GetDuration("Device", "reset_delay", 3*time.Second),
		sleep:      sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Template returns the keystrokes typed after a program was written. The
// length byte written with them always equals len(Template(...)).
func Template(list, run bool) []byte {
	var keys []byte
	if list {
		keys = append(keys, 'L', 'I', 'S', 'T', 13)
	}
	if run {
		keys = append(keys, 'R', 'U', 'N', 13)
	}
	return keys
}

// EnterProgram tokenizes source and makes it the current program. Nothing is
// written when the source does not encode.
func (l *Loader) EnterProgram(ctx context.Context, source string, opts Options) (*Result, error) {
	start := time.Now()
	base := opts.Base
	if base == 0 {
		base = basic.DefaultBase
	}

	img, err := basic.EncodeSource(source, base)
	if err != nil {
		return nil, fmt.Errorf("tokenizing program: %w", err)
	}
	if int(img.End) > basicRAMEnd {
		return nil, fmt.Errorf("%w: ends at $%04X", ErrProgramSize, img.End)
	}

	if opts.Reset {
		if _, err := l.dev.Reset(ctx); err != nil {
			return nil, fmt.Errorf("resetting machine: %w", err)
		}
		if err := l.sleep(ctx, l.resetDelay); err != nil {
			return nil, err
		}
	}

	if err := l.dev.WriteMemory(ctx, img.Base, img.Bytes); err != nil {
		return nil, fmt.Errorf("writing program: %w", err)
	}
	if err := l.writePointers(ctx, img.Base, img.End); err != nil {
		return nil, err
	}

	result := &Result{Image: img}
	if keys := Template(opts.List, opts.AutoRun); len(keys) > 0 {
		if err := l.keys.Inject(ctx, keys); err != nil {
			return nil, fmt.Errorf("typing %q: %w", printableKeys(keys), err)
		}
		result.Typed = keys
	}
	result.Duration = time.Since(start)

	logger.Info(logger.AreaLoader, "Entered %d lines (%d bytes) at $%04X, end $%04X", img.Lines, len(img.Bytes), img.Base, img.End)
	return result, nil
}

// writePointers sets TXTTAB to base and VARTAB, ARYTAB, STREND to end
func (l *Loader) writePointers(ctx context.Context, base, end uint16) error {
	if err := l.dev.WriteMemory(ctx, TXTTAB, le16(base)); err != nil {
		return fmt.Errorf("writing start of BASIC: %w", err)
	}
	for _, ptr := range []uint16{VARTAB, ARYTAB, STREND} {
		if err := l.dev.WriteMemory(ctx, ptr, le16(end)); err != nil {
			return fmt.Errorf("writing pointer $%02X: %w", ptr, err)
		}
	}
	return nil
}

// ReadProgram decodes the program the interpreter currently holds
func (l *Loader) ReadProgram(ctx context.Context) (*basic.Listing, error) {
	ptrs, err := l.dev.ReadMemory(ctx, TXTTAB, 4)
	if err != nil {
		return nil, fmt.Errorf("reading BASIC pointers: %w", err)
	}
	start := uint16(ptrs[0]) | uint16(ptrs[1])<<8
	end := uint16(ptrs[2]) | uint16(ptrs[3])<<8
	if start == 0 {
		return nil, ErrNoProgram
	}

	length := int(end) - int(start)
	if length < 2 {
		length = 2
	}
	if int(start)+length > basicRAMEnd {
		return nil, fmt.Errorf("%w: pointers $%04X-$%04X", ErrProgramSize, start, end)
	}

	data, err := l.dev.ReadMemory(ctx, start, length)
	if err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}
	listing, err := basic.Decode(data, start)
	if err != nil {
		return nil, err
	}
	logger.Debug(logger.AreaLoader, "Read %d lines from $%04X", len(listing.Lines), start)
	return listing, nil
}

func le16(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

// printableKeys renders keystrokes with {NAME} placeholders for logs
func printableKeys(keys []byte) string {
	s := ""
	for _, k := range keys {
		if petscii.Printable(rune(k)) {
			s += string(rune(k))
		} else {
			s += petscii.Placeholder(k)
		}
	}
	return s
}
