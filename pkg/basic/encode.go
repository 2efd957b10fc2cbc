package basic

import (
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/antibyte/c64mcp/pkg/petscii"
)

// Line is one numbered BASIC line in source form.
type Line struct {
	Number uint16
	Text   string
}

// Image is an encoded program ready to be written to memory at Base.
type Image struct {
	Base  uint16
	End   uint16 // first free byte after the end marker
	Bytes []byte
	Lines int
}

// Marker returns the address of the trailing 0x00 0x00 end marker.
func (img *Image) Marker() uint16 {
	return img.End - 2
}

// Hex returns the image as an uppercase hex string.
func (img *Image) Hex() string {
	return strings.ToUpper(hex.EncodeToString(img.Bytes))
}

// PRG returns the image prefixed with its little-endian load address.
func (img *Image) PRG() []byte {
	out := make([]byte, 0, len(img.Bytes)+2)
	out = append(out, byte(img.Base), byte(img.Base>>8))
	return append(out, img.Bytes...)
}

// SplitPRG separates a PRG file into load address and payload.
func SplitPRG(data []byte) (uint16, []byte, error) {
	if len(data) < 2 {
		return 0, nil, ErrShortPRG
	}
	return uint16(data[0]) | uint16(data[1])<<8, data[2:], nil
}

// Encode lays out lines as a linked program image starting at base.
//
// Each line becomes [link][number][content][0x00]. The last line links to a
// separate 0x00 0x00 marker so that LIST and RUN still see it; End is the
// address just past that marker. Nothing is returned on error.
//
// Decoding an image gives the lines back except that lowercase letters
// come back uppercase, and \ and _ come back as £ and ←, the symbols the
// C64 shows for those codes.
func Encode(lines []Line, base uint16) (*Image, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyProgram
	}

	contents := make([][]byte, len(lines))
	size := 2
	for i, ln := range lines {
		if ln.Number > MaxLineNumber {
			return nil, &LineError{Line: int(ln.Number), Err: ErrLineNumberRange}
		}
		if i > 0 && ln.Number <= lines[i-1].Number {
			return nil, &LineError{Line: int(ln.Number), Err: ErrInvalidLineOrder}
		}
		content, err := Tokenize(ln.Text)
		if err != nil {
			var le *LineError
			if errors.As(err, &le) {
				le.Line = int(ln.Number)
			}
			return nil, err
		}
		contents[i] = content
		size += 4 + len(content) + 1
	}

	end := int(base) + size
	if end > 0xFFFF {
		return nil, &LineError{Line: int(lines[len(lines)-1].Number), Err: ErrAddressOverflow}
	}

	buf := make([]byte, 0, size)
	addr := int(base)
	for i, ln := range lines {
		next := addr + 4 + len(contents[i]) + 1
		buf = append(buf, byte(next), byte(next>>8), byte(ln.Number), byte(ln.Number>>8))
		buf = append(buf, contents[i]...)
		buf = append(buf, 0x00)
		addr = next
	}
	// addr is now the marker address, which the last link already holds
	buf = append(buf, 0x00, 0x00)

	return &Image{Base: base, End: uint16(end), Bytes: buf, Lines: len(lines)}, nil
}

// Tokenize converts the text of one line (without its number) to token and
// PETSCII bytes. Keywords are matched longest first at every position except
// inside string literals, after REM, and inside DATA up to the next colon.
// Lowercase letters are folded to uppercase. Inside strings, {NAME}
// placeholders insert control codes.
func Tokenize(text string) ([]byte, error) {
	text = foldCase(text)
	out := make([]byte, 0, len(text))
	inQuote, inRem, inData := false, false, false

	for i := 0; i < len(text); {
		if text[i] == '"' {
			out = append(out, '"')
			inQuote = !inQuote
			i++
			continue
		}

		if inQuote && text[i] == '{' {
			if end := strings.IndexByte(text[i:], '}'); end > 0 {
				if code, ok := petscii.Lookup(text[i+1 : i+end]); ok {
					out = append(out, code)
					i += end + 1
					continue
				}
			}
		}

		if !inQuote && !inRem && !inData {
			if kw, ok := matchKeyword(text[i:]); ok {
				out = append(out, kw.Token)
				i += len(kw.Text)
				switch kw.Token {
				case tokenRem:
					inRem = true
				case tokenData:
					inData = true
				}
				continue
			}
		}

		r, n := utf8.DecodeRuneInString(text[i:])
		code, ok := petscii.FromRune(r)
		if !ok {
			return nil, &LineError{Column: utf8.RuneCountInString(text[:i]) + 1, Char: r, Err: ErrUnknownCharacter}
		}
		if inData && !inQuote && r == ':' {
			inData = false
		}
		out = append(out, code)
		i += n
	}
	return out, nil
}

// foldCase uppercases ASCII letters only; PETSCII has no other case mapping.
func foldCase(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r - 32
		}
		return r
	}, s)
}
