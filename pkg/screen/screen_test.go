package screen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"strings"
	"testing"
)

func vicRegs(d011, d016, d018 byte) []byte {
	regs := make([]byte, VICRegisterCount)
	regs[regControl1] = d011
	regs[regControl2] = d016
	regs[regMemory] = d018
	regs[regBorder] = 0xFE // upper nibble is ignored
	regs[regBg0] = 0xF6
	regs[regBg0+1] = 0x01
	regs[regBg0+2] = 0x02
	regs[regBg0+3] = 0x03
	return regs
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		d011, d016 byte
		want       Mode
	}{
		{"text", 0x1B, 0xC8, StandardText},
		{"multicolor text", 0x1B, 0xD8, MulticolorText},
		{"ecm", 0x5B, 0xC8, ExtendedBackground},
		{"hires", 0x3B, 0xC8, StandardBitmap},
		{"multicolor bitmap", 0x3B, 0xD8, MulticolorBitmap},
		{"ecm+bmm", 0x7B, 0xC8, InvalidECMBitmap},
		{"ecm+mcm", 0x5B, 0xD8, InvalidECMMulti},
	}
	for _, tt := range tests {
		info, err := Detect(vicRegs(tt.d011, tt.d016, 0x15), 0x97)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if info.Mode != tt.want {
			t.Errorf("%s: mode = %s, want %s", tt.name, info.Mode, tt.want)
		}
	}
}

func TestDetectAddresses(t *testing.T) {
	// power-on state: bank 0, screen $0400, charset ROM at $1000
	info, err := Detect(vicRegs(0x1B, 0xC8, 0x15), 0x97)
	if err != nil {
		t.Fatal(err)
	}
	if info.VICBank != 0 || info.Screen != 0x0400 || info.Charset != 0x1000 || !info.ROMCharset {
		t.Errorf("Unexpected layout %+v", info)
	}
	if info.Border != 0x0E || info.Backgrounds != [4]byte{6, 1, 2, 3} {
		t.Errorf("Unexpected colours %+v", info)
	}
	if got := info.Summary(); got != "Mode: Standard Text | VIC Bank: $0000 | Screen: $0400 | Charset: $1000 (ROM)" {
		t.Errorf("Summary = %q", got)
	}

	// bank 1 ($DD00 bits = 2), screen $0C00 in bank, charset $2000, bitmap $6000
	info, err = Detect(vicRegs(0x3B, 0xC8, 0x38), 0x96)
	if err != nil {
		t.Fatal(err)
	}
	if info.VICBank != 0x4000 || info.Screen != 0x4C00 || info.Bitmap != 0x6000 || info.ROMCharset {
		t.Errorf("Unexpected bank 1 layout %+v", info)
	}

	data, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"screen_address":"$4C00"`) {
		t.Errorf("JSON = %s", data)
	}

	if _, err := Detect(make([]byte, 4), 0); err == nil {
		t.Error("short register dump should fail")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(" Standard_Bitmap "); err != nil || m != StandardBitmap {
		t.Errorf("ParseMode = %s, %v", m, err)
	}
	if _, err := ParseMode("invalid_ecm_bmm"); err == nil {
		t.Error("invalid modes cannot be requested")
	}
}

func blankSnapshot(mode Mode) *Snapshot {
	info, _ := Detect(vicRegs(0x1B, 0xC8, 0x15), 0x97)
	info.Mode = mode
	return &Snapshot{
		Info:   info,
		Screen: bytes.Repeat([]byte{0x20}, cells),
		Color:  bytes.Repeat([]byte{0x0E}, cells),
		Bitmap: make([]byte, bitmapSize),
	}
}

func TestText(t *testing.T) {
	snap := blankSnapshot(StandardText)
	copy(snap.Screen, []byte{0x12, 0x05, 0x01, 0x04, 0x19, 0x2E}) // READY.
	lines := strings.Split(snap.Text(), "\n")
	if len(lines) != Rows+1 {
		t.Fatalf("Expected %d lines, got %d", Rows+1, len(lines))
	}
	if lines[0] != "READY." || lines[1] != "" {
		t.Errorf("Unexpected text %q", lines[:2])
	}
}

func TestRenderBitmap(t *testing.T) {
	snap := blankSnapshot(StandardBitmap)
	snap.Screen[0] = 0x10 // white on black
	snap.Bitmap[0] = 0x80

	img, err := snap.Render(StandardBitmap, RenderOptions{Scale: 2, Border: true})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != (Width+2*BorderSize)*2 || b.Dy() != (Height+2*BorderSize)*2 {
		t.Fatalf("Unexpected size %v", b)
	}
	if got := img.RGBAAt(0, 0); got != Palette[0x0E] {
		t.Errorf("Border pixel = %v", got)
	}
	origin := BorderSize * 2
	if got := img.RGBAAt(origin+1, origin+1); got != Palette[1] {
		t.Errorf("Set pixel = %v, want white", got)
	}
	if got := img.RGBAAt(origin+2, origin); got != Palette[0] {
		t.Errorf("Clear pixel = %v, want black", got)
	}

	pngData, err := EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(bytes.NewReader(pngData)); err != nil {
		t.Errorf("PNG does not decode: %v", err)
	}
}

func TestRenderMulticolorBitmap(t *testing.T) {
	snap := blankSnapshot(MulticolorBitmap)
	snap.Screen[0] = 0x25
	snap.Color[0] = 0x07
	snap.Bitmap[0] = 0x1B // 00 01 10 11

	img, err := snap.Render(MulticolorBitmap, RenderOptions{Scale: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{6, 2, 5, 7}
	for pair, colour := range want {
		for _, x := range []int{pair * 2, pair*2 + 1} {
			if got := img.RGBAAt(x, 0); got != Palette[colour] {
				t.Errorf("x=%d colour = %v, want palette %d", x, got, colour)
			}
		}
	}
}

func TestRenderCharsets(t *testing.T) {
	snap := blankSnapshot(StandardText)
	snap.Charset = make([]byte, charsetLen)
	snap.Charset = make([]byte, charsetLen)
	snap.Charset[1*8] = 0xFF // glyph 1, top row
	snap.Screen[0] = 0x41    // ECM: background 1, glyph 1
	img, err := snap.Render(ExtendedBackground, RenderOptions{Scale: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(0, 0); got != Palette[0x0E] {
		t.Errorf("Foreground = %v", got)
	}
	if got := img.RGBAAt(0, 1); got != Palette[1] {
		t.Errorf("ECM background = %v, want colour 1", got)
	}

	if _, err := snap.Render(InvalidECMBitmap, RenderOptions{}); err == nil {
		t.Error("invalid mode should not render")
	}
}

func TestRenderROMCharset(t *testing.T) {
	snap := blankSnapshot(StandardText)
	snap.Screen[0] = 0x01 // A
	snap.Screen[1] = 0x81 // reversed A

	img, err := snap.Render(StandardText, RenderOptions{Scale: 1})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	// top row of A is 00011000
	for x, want := range []byte{6, 6, 6, 0x0E, 0x0E, 6, 6, 6} {
		if got := img.RGBAAt(x, 0); got != Palette[want] {
			t.Errorf("A x=%d colour = %v, want palette %d", x, got, want)
		}
		if got := img.RGBAAt(8+x, 0); got == Palette[want] {
			t.Errorf("reversed A x=%d not inverted", x)
		}
	}

	// $1800 selects the lowercase set, where code 1 is a
	snap.Info.Charset = 0x1800
	img, err = snap.Render(StandardText, RenderOptions{Scale: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(3, 0); got != Palette[6] {
		t.Errorf("lowercase a top row = %v, want background", got)
	}
	if got := img.RGBAAt(2, 2); got != Palette[0x0E] {
		t.Errorf("lowercase a row 2 = %v, want foreground", got)
	}

	if len(ROMCharset(0x1000)) != charsetLen || len(ROMCharset(0x9800)) != charsetLen {
		t.Error("ROM charsets must be 2 KB")
	}
}

type fakeDevice struct {
	mem              [0x10000]byte
	pauses, resumes  int
	failAt           uint16
	pausedDuringRead bool
}

func (d *fakeDevice) ReadMemory(ctx context.Context, addr uint16, length int) ([]byte, error) {
	if d.pauses == d.resumes {
		d.pausedDuringRead = false
	}
	if d.failAt != 0 && addr == d.failAt {
		return nil, errors.New("boom")
	}
	return append([]byte(nil), d.mem[addr:int(addr)+length]...), nil
}

func (d *fakeDevice) Pause(ctx context.Context) (string, error)  { d.pauses++; return "", nil }
func (d *fakeDevice) Resume(ctx context.Context) (string, error) { d.resumes++; return "", nil }

func TestReaderSnapshot(t *testing.T) {
	dev := &fakeDevice{pausedDuringRead: true}
	copy(dev.mem[0xD000:], vicRegs(0x1B, 0xC8, 0x15))
	dev.mem[0xDD00] = 0x97
	copy(dev.mem[0x0400:], bytes.Repeat([]byte{0x20}, cells))
	dev.mem[0x0400] = 0x08 // H

	snap, err := NewReader(dev).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if dev.pauses != 1 || dev.resumes != 1 || !dev.pausedDuringRead {
		t.Errorf("pauses=%d resumes=%d paused=%v", dev.pauses, dev.resumes, dev.pausedDuringRead)
	}
	if snap.Charset != nil {
		t.Error("ROM charset must not be read")
	}
	if !strings.HasPrefix(snap.Text(), "H\n") {
		t.Errorf("Text = %q", snap.Text()[:10])
	}

	dev.failAt = 0xD800
	if _, err := NewReader(dev).Snapshot(context.Background()); err == nil {
		t.Fatal("Expected read error")
	}
	if dev.pauses != dev.resumes {
		t.Errorf("Machine left paused: pauses=%d resumes=%d", dev.pauses, dev.resumes)
	}
}

func TestReaderReadText(t *testing.T) {
	dev := &fakeDevice{}
	copy(dev.mem[0xD000:], vicRegs(0x1B, 0xC8, 0x15))
	dev.mem[0xDD00] = 0x97
	copy(dev.mem[0x0400:], bytes.Repeat([]byte{0x20}, cells))
	copy(dev.mem[0x0400+Columns:], []byte{0x12, 0x05, 0x01, 0x04, 0x19, 0x2E}) // READY.

	text, err := NewReader(dev).ReadText(context.Background())
	if err != nil {
		t.Fatalf("ReadText failed: %v", err)
	}
	if !strings.HasPrefix(text, "\nREADY.\n") {
		t.Errorf("Text = %q", text[:12])
	}
	if dev.pauses != 0 {
		t.Error("ReadText must not pause the machine")
	}

	copy(dev.mem[0xD000:], vicRegs(0x3B, 0xC8, 0x18))
	if _, err := NewReader(dev).ReadText(context.Background()); err == nil {
		t.Error("Expected error in bitmap mode")
	}
}
