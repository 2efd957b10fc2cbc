// Package screen reads the VIC-II state of a running C64 and turns it into
// text or images.
package screen

import (
	"fmt"
	"strings"
)

// Mode is a VIC-II graphics mode
type Mode string

const (
	StandardText       Mode = "standard_text"
	MulticolorText     Mode = "multicolor_text"
	ExtendedBackground Mode = "extended_bg_color"
	StandardBitmap     Mode = "standard_bitmap"
	MulticolorBitmap   Mode = "multicolor_bitmap"
	InvalidECMBitmap   Mode = "invalid_ecm_bmm"
	InvalidECMMulti    Mode = "invalid_ecm_mcm"
)

// ValidModes are the modes that can be rendered
var ValidModes = []Mode{StandardText, MulticolorText, ExtendedBackground, StandardBitmap, MulticolorBitmap}

var modeNames = map[Mode]string{
	StandardText:       "Standard Text",
	MulticolorText:     "Multicolor Text",
	ExtendedBackground: "Extended Background Color",
	StandardBitmap:     "Standard Bitmap (Hires)",
	MulticolorBitmap:   "Multicolor Bitmap",
	InvalidECMBitmap:   "Invalid (ECM+BMM)",
	InvalidECMMulti:    "Invalid (ECM+MCM)",
}

// Name is the display name of the mode
func (m Mode) Name() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return string(m)
}

// Bitmap reports whether the mode reads a bitmap instead of a charset
func (m Mode) Bitmap() bool {
	return m == StandardBitmap || m == MulticolorBitmap
}

// Valid reports whether the mode can be rendered
func (m Mode) Valid() bool {
	for _, v := range ValidModes {
		if m == v {
			return true
		}
	}
	return false
}

// ParseMode accepts one of the ValidModes names
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		names := make([]string, len(ValidModes))
		for i, v := range ValidModes {
			names[i] = string(v)
		}
		return "", fmt.Errorf("invalid screen mode %q, valid modes: %s", s, strings.Join(names, ", "))
	}
	return m, nil
}

// Addr is a 16-bit address that renders as $XXXX in JSON
type Addr uint16

func (a Addr) String() string { return fmt.Sprintf("$%04X", uint16(a)) }

func (a Addr) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// VIC-II register offsets from $D000
const (
	regControl1 = 0x11
	regControl2 = 0x16
	regMemory   = 0x18
	regBorder   = 0x20
	regBg0      = 0x21

	// VICRegisterCount is the number of registers read from $D000
	VICRegisterCount = 0x2F
)

// Info is the decoded VIC-II configuration
type Info struct {
	Mode        Mode    `json:"mode"`
	Name        string  `json:"name"`
	VICBank     Addr    `json:"vic_bank"`
	Screen      Addr    `json:"screen_address"`
	Charset     Addr    `json:"charset_address"`
	Bitmap      Addr    `json:"bitmap_address"`
	ROMCharset  bool    `json:"rom_charset"`
	Border      byte    `json:"border_color"`
	Backgrounds [4]byte `json:"background_colors"`
}

// Detect decodes the mode and memory layout from the VIC-II registers and
// CIA 2 port A ($DD00)
func Detect(vic []byte, cia2PortA byte) (Info, error) {
	if len(vic) < VICRegisterCount {
		return Info{}, fmt.Errorf("need %d VIC registers, got %d", VICRegisterCount, len(vic))
	}
	d011, d016, d018 := vic[regControl1], vic[regControl2], vic[regMemory]

	bmm := d011&0x20 != 0
	ecm := d011&0x40 != 0
	mcm := d016&0x10 != 0

	var mode Mode
	switch {
	case ecm && bmm:
		mode = InvalidECMBitmap
	case ecm && mcm:
		mode = InvalidECMMulti
	case bmm && mcm:
		mode = MulticolorBitmap
	case bmm:
		mode = StandardBitmap
	case ecm:
		mode = ExtendedBackground
	case mcm:
		mode = MulticolorText
	default:
		mode = StandardText
	}

	// the bank bits of $DD00 are inverted
	bankBits := cia2PortA & 0x03
	bank := uint16(3-bankBits) * 0x4000
	charOffset := uint16((d018>>1)&0x07) * 0x0800
	bitmapOffset := uint16(0)
	if d018&0x08 != 0 {
		bitmapOffset = 0x2000
	}

	info := Info{
		Mode:    mode,
		Name:    mode.Name(),
		VICBank: Addr(bank),
		Screen:  Addr(bank + uint16(d018>>4)*0x0400),
		Charset: Addr(bank + charOffset),
		Bitmap:  Addr(bank + bitmapOffset),
		// the character ROM shows up at $1000-$1FFF in banks 0 and 2
		ROMCharset: (bankBits == 0x03 || bankBits == 0x01) && (charOffset == 0x1000 || charOffset == 0x1800),
		Border:     vic[regBorder] & 0x0F,
	}
	for i := range info.Backgrounds {
		info.Backgrounds[i] = vic[regBg0+i] & 0x0F
	}
	return info, nil
}

// Summary is the one-line description attached to captures
func (i Info) Summary() string {
	s := fmt.Sprintf("Mode: %s | VIC Bank: %s | Screen: %s", i.Name, i.VICBank, i.Screen)
	if i.Mode.Bitmap() {
		return s + " | Bitmap: " + i.Bitmap.String()
	}
	s += " | Charset: " + i.Charset.String()
	if i.ROMCharset {
		s += " (ROM)"
	}
	return s
}
