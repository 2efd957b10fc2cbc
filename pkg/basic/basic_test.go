package basic

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// TestEncodeSingleLine checks the byte layout of one POKE line
func TestEncodeSingleLine(t *testing.T) {
	img, err := Encode([]Line{{10, "POKE 53280,0"}}, DefaultBase)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := mustHex(t, "0F 08 0A 00 97 20 35 33 32 38 30 2C 30 00")
	if !bytes.HasPrefix(img.Bytes, want) {
		t.Errorf("Expected line bytes % X, got % X", want, img.Bytes)
	}
	if len(img.Bytes) != len(want)+2 {
		t.Errorf("Expected %d bytes including marker, got %d", len(want)+2, len(img.Bytes))
	}
}

// TestEncodeTwoLines checks the full image and end address of a two line program
func TestEncodeTwoLines(t *testing.T) {
	img, err := Encode([]Line{{10, "POKE 53280,0"}, {20, "GOTO 10"}}, DefaultBase)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if got := img.Hex(); got != "0F080A00972035333238302C300018081400892031300000" {
		t.Errorf("Unexpected image %s", got)
	}
	if img.End != 0x081A {
		t.Errorf("Expected end $081A, got $%04X", img.End)
	}
	if img.Marker() != 0x0818 {
		t.Errorf("Expected marker at $0818, got $%04X", img.Marker())
	}
	if img.Lines != 2 {
		t.Errorf("Expected 2 lines, got %d", img.Lines)
	}
}

// TestNumbersStayDigits makes sure numeric literals are not packed into binary
func TestNumbersStayDigits(t *testing.T) {
	content, err := Tokenize("53280")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if !bytes.Equal(content, []byte{0x35, 0x33, 0x32, 0x38, 0x30}) {
		t.Errorf("Expected digit bytes, got % X", content)
	}
}

func TestMultiplyIsNotComma(t *testing.T) {
	content, err := Tokenize("A=2*3,4")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	want := []byte{'A', 0xB2, '2', 0xAC, '3', 0x2C, '4'}
	if !bytes.Equal(content, want) {
		t.Errorf("Expected % X, got % X", want, content)
	}
}

func TestTokenizeLongestMatch(t *testing.T) {
	tests := []struct {
		text string
		want []byte
	}{
		{"PRINT#1", []byte{0x98, '1'}},
		{"INPUT#2", []byte{0x84, '2'}},
		{"GOSUB 100", []byte{0x8D, ' ', '1', '0', '0'}},
		{"GO TO 10", []byte{0xCB, ' ', 0xA4, ' ', '1', '0'}},
		{"A$=LEFT$(B$,2)", []byte{'A', '$', 0xB2, 0xC8, '(', 'B', '$', ',', '2', ')'}},
		{"print tab(5)", []byte{0x99, ' ', 0xA3, '5', ')'}},
	}
	for _, tt := range tests {
		got, err := Tokenize(tt.text)
		if err != nil {
			t.Errorf("Tokenize(%q) failed: %v", tt.text, err)
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("Tokenize(%q) = % X, want % X", tt.text, got, tt.want)
		}
	}
}

// TestTokenizeLiterals checks strings, REM and DATA are left untokenized
func TestTokenizeLiterals(t *testing.T) {
	tests := []struct {
		text string
		want []byte
	}{
		{`PRINT "TO GO"`, []byte{0x99, ' ', '"', 'T', 'O', ' ', 'G', 'O', '"'}},
		{"REM FOR NEXT", []byte{0x8F, ' ', 'F', 'O', 'R', ' ', 'N', 'E', 'X', 'T'}},
		{"DATA ON,OFF:END", []byte{0x83, ' ', 'O', 'N', ',', 'O', 'F', 'F', ':', 0x80}},
		{`PRINT "{CLR}HI"`, []byte{0x99, ' ', '"', 147, 'H', 'I', '"'}},
		{`PRINT "{$1C}"`, []byte{0x99, ' ', '"', 0x1C, '"'}},
		{"A=π", []byte{'A', 0xB2, 0xFF}},
	}
	for _, tt := range tests {
		got, err := Tokenize(tt.text)
		if err != nil {
			t.Errorf("Tokenize(%q) failed: %v", tt.text, err)
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("Tokenize(%q) = % X, want % X", tt.text, got, tt.want)
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode([]Line{{20, "GOTO 10"}, {10, "POKE 53280,0"}}, DefaultBase)
	if !errors.Is(err, ErrInvalidLineOrder) {
		t.Errorf("Expected ErrInvalidLineOrder, got %v", err)
	}
	var le *LineError
	if !errors.As(err, &le) || le.Line != 10 {
		t.Errorf("Expected error naming line 10, got %v", err)
	}

	if _, err := Encode([]Line{{10, "END"}, {10, "END"}}, DefaultBase); !errors.Is(err, ErrInvalidLineOrder) {
		t.Errorf("Expected ErrInvalidLineOrder for duplicate line, got %v", err)
	}

	if _, err := Encode(nil, DefaultBase); !errors.Is(err, ErrEmptyProgram) {
		t.Errorf("Expected ErrEmptyProgram, got %v", err)
	}

	if _, err := Encode([]Line{{64000, "END"}}, DefaultBase); !errors.Is(err, ErrLineNumberRange) {
		t.Errorf("Expected ErrLineNumberRange, got %v", err)
	}

	if _, err := Encode([]Line{{10, "PRINT 1"}}, 0xFFF8); !errors.Is(err, ErrAddressOverflow) {
		t.Errorf("Expected ErrAddressOverflow, got %v", err)
	}

	_, err = Encode([]Line{{30, "PRINT ~"}}, DefaultBase)
	if !errors.Is(err, ErrUnknownCharacter) {
		t.Fatalf("Expected ErrUnknownCharacter, got %v", err)
	}
	if !errors.As(err, &le) || le.Line != 30 || le.Char != '~' || le.Column != 7 {
		t.Errorf("Unexpected error detail: %+v", le)
	}
	if !strings.Contains(err.Error(), "line 30") {
		t.Errorf("Error message should name the line: %s", err)
	}
}

// TestEncodeFitsExactly checks the largest image that still ends at $FFFF
func TestEncodeFitsExactly(t *testing.T) {
	// one empty line is 5 bytes plus the 2 byte marker
	img, err := Encode([]Line{{1, ""}}, 0xFFFF-7)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if img.End != 0xFFFF {
		t.Errorf("Expected end $FFFF, got $%04X", img.End)
	}
}

func TestRoundTrip(t *testing.T) {
	programs := [][]Line{
		{{10, "POKE 53280,0"}, {20, "GOTO 10"}},
		{{0, ""}, {1, `PRINT "HELLO, WORLD"`}, {63999, "END"}},
		{{100, "FORI=1TO10STEP2:PRINTI*2;:NEXTI"}, {110, `IF A$="Y" THEN GOSUB 200`}},
		{{5, "REM *** TITLE ***"}, {6, "DATA 1,-2,3:READ X"}, {7, `PRINT "{CLR}{RED}RED"`}},
		{{10, "X=SIN(π/2)+ATN(1)^2"}},
		{{10, `PRINT "£5 ↑ ←"`}, {20, "REM £↑←"}},
	}
	for _, base := range []uint16{DefaultBase, 0x1C01, 0xC000} {
		for _, lines := range programs {
			img, err := Encode(lines, base)
			if err != nil {
				t.Fatalf("Encode(%v) failed: %v", lines, err)
			}
			listing, err := Decode(img.Bytes, base)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if len(listing.Lines) != len(lines) {
				t.Fatalf("Expected %d lines, got %d", len(lines), len(listing.Lines))
			}
			for i := range lines {
				if listing.Lines[i] != lines[i] {
					t.Errorf("Line %d: expected %+v, got %+v", i, lines[i], listing.Lines[i])
				}
			}
			if listing.End != img.End {
				t.Errorf("Expected decoded end $%04X, got $%04X", img.End, listing.End)
			}
		}
	}
}

func TestRoundTripFolding(t *testing.T) {
	tests := []struct{ in, want string }{
		{`print "hi"`, `PRINT "HI"`},
		{`PRINT "A\B_C"`, `PRINT "A£B←C"`},
		{"DATA a^b", "DATA A↑B"},
	}
	for _, tt := range tests {
		img, err := Encode([]Line{{10, tt.in}}, DefaultBase)
		if err != nil {
			t.Fatalf("Encode(%q) failed: %v", tt.in, err)
		}
		listing, err := Decode(img.Bytes, DefaultBase)
		if err != nil {
			t.Fatal(err)
		}
		if got := listing.Lines[0].Text; got != tt.want {
			t.Errorf("%q decoded as %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestLinkChain walks the links by hand and checks the marker placement
func TestLinkChain(t *testing.T) {
	lines := []Line{{10, "A=1"}, {20, "B=2"}, {30, `PRINT A+B`}}
	img, err := Encode(lines, DefaultBase)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	addr := int(img.Base)
	visited := 0
	for {
		off := addr - int(img.Base)
		link := int(img.Bytes[off]) | int(img.Bytes[off+1])<<8
		if link == 0 {
			break
		}
		number := uint16(img.Bytes[off+2]) | uint16(img.Bytes[off+3])<<8
		if number != lines[visited].Number {
			t.Errorf("Expected line %d, got %d", lines[visited].Number, number)
		}
		if img.Bytes[link-int(img.Base)-1] != 0x00 {
			t.Errorf("Link $%04X does not follow a terminator", link)
		}
		visited++
		addr = link
	}
	if visited != len(lines) {
		t.Errorf("Expected to visit %d lines, visited %d", len(lines), visited)
	}
	if addr+2 != int(img.End) {
		t.Errorf("Chain ended at $%04X, expected marker $%04X", addr, img.Marker())
	}
	n := len(img.Bytes)
	if img.Bytes[n-1] != 0 || img.Bytes[n-2] != 0 {
		t.Errorf("Image does not end with the 00 00 marker")
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"backwards link", "0108 0A00 99 00 0000"},
		{"link outside", "FF0F 0A00 99 00 0000"},
		{"truncated", "0F"},
		{"content after terminator", "0908 0A00 99 00 20 0000 00"},
		{"missing terminator", "0708 0A00 99 20 0000"},
	}
	for _, tt := range tests {
		_, err := Decode(mustHex(t, tt.data), DefaultBase)
		if !errors.Is(err, ErrMalformedChain) {
			t.Errorf("%s: expected ErrMalformedChain, got %v", tt.name, err)
		}
	}
}

func TestDecodeEmptyProgram(t *testing.T) {
	listing, err := Decode([]byte{0, 0}, DefaultBase)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(listing.Lines) != 0 || listing.End != DefaultBase+2 {
		t.Errorf("Unexpected listing %+v", listing)
	}
}

func TestParseSource(t *testing.T) {
	src := "# demo\n10 PRINT \"HI\"\r\n\n  20goto 10  \n// trailer\n"
	lines, err := ParseSource(src)
	if err != nil {
		t.Fatalf("ParseSource failed: %v", err)
	}
	want := []Line{{10, `PRINT "HI"`}, {20, "goto 10"}}
	if len(lines) != len(want) {
		t.Fatalf("Expected %d lines, got %d", len(want), len(lines))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("Line %d: expected %+v, got %+v", i, want[i], lines[i])
		}
	}

	if _, err := ParseSource("PRINT 1"); !errors.Is(err, ErrMissingLineNumber) {
		t.Errorf("Expected ErrMissingLineNumber, got %v", err)
	}
	if _, err := ParseSource("70000 END"); !errors.Is(err, ErrLineNumberRange) {
		t.Errorf("Expected ErrLineNumberRange, got %v", err)
	}
}

func TestEncodeSourceAndListing(t *testing.T) {
	img, err := EncodeSource("10 print \"hi\"\n20 goto 10", DefaultBase)
	if err != nil {
		t.Fatalf("EncodeSource failed: %v", err)
	}
	listing, err := Decode(img.Bytes, img.Base)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := listing.String(); got != "10 PRINT \"HI\"\n20 GOTO 10\n" {
		t.Errorf("Unexpected listing %q", got)
	}
}

func TestPRG(t *testing.T) {
	img, err := Encode([]Line{{10, "END"}}, DefaultBase)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	prg := img.PRG()
	addr, payload, err := SplitPRG(prg)
	if err != nil {
		t.Fatalf("SplitPRG failed: %v", err)
	}
	if addr != DefaultBase || !bytes.Equal(payload, img.Bytes) {
		t.Errorf("PRG did not split back: $%04X % X", addr, payload)
	}
	if _, _, err := SplitPRG([]byte{1}); !errors.Is(err, ErrShortPRG) {
		t.Errorf("Expected ErrShortPRG, got %v", err)
	}
}

func TestTokenTable(t *testing.T) {
	seen := make(map[byte]string)
	for _, kw := range Keywords {
		if kw.Token < 0x80 || kw.Token > 0xCB {
			t.Errorf("Token %s out of range: $%02X", kw.Text, kw.Token)
		}
		if prev, ok := seen[kw.Token]; ok {
			t.Errorf("Token $%02X used by %s and %s", kw.Token, prev, kw.Text)
		}
		seen[kw.Token] = kw.Text
	}
	for kw, want := range map[string]byte{"GOTO": 0x89, "POKE": 0x97, "PRINT": 0x99, "*": 0xAC} {
		if got, ok := TokenFor(kw); !ok || got != want {
			t.Errorf("TokenFor(%s) = $%02X, want $%02X", kw, got, want)
		}
	}
	if kw, ok := KeywordFor(0xCB); !ok || kw != "GO" {
		t.Errorf("KeywordFor($CB) = %q", kw)
	}
}
