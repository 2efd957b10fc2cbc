// Package petscii converts between host text and the C64 character encodings
// used by the keyboard buffer, BASIC program text and screen memory.
package petscii

import (
	"fmt"
	"strconv"
	"strings"
)

// Pi is the PETSCII code for the pi character (also a BASIC constant).
const Pi = 0xFF

// Key is a named PETSCII control code that can be written as {NAME}.
type Key struct {
	Name string
	Code byte
}

// Keys lists the named control codes. The first entry for a code is its
// canonical name when rendering.
var Keys = []Key{
	{"RETURN", 13},
	{"HOME", 19},
	{"CLR", 147},
	{"DEL", 20},
	{"INS", 148},
	{"UP", 145},
	{"DOWN", 17},
	{"LEFT", 157},
	{"RIGHT", 29},
	{"F1", 133},
	{"F2", 137},
	{"F3", 134},
	{"F4", 138},
	{"F5", 135},
	{"F6", 139},
	{"F7", 136},
	{"F8", 140},
	{"RUN_STOP", 3},
	{"RVS_ON", 18},
	{"RVS_OFF", 146},
	{"BLK", 144},
	{"WHT", 5},
	{"RED", 28},
	{"CYN", 159},
	{"PUR", 156},
	{"GRN", 30},
	{"BLU", 31},
	{"YEL", 158},
	{"ORNG", 129},
	{"BRN", 149},
	{"LRED", 150},
	{"GRY1", 151},
	{"GRY2", 152},
	{"LGRN", 153},
	{"LBLU", 154},
	{"GRY3", 155},
	{"CR", 13},
	{"CLEAR", 147},
	{"STOP", 3},
}

var (
	byName = make(map[string]byte, len(Keys))
	byCode = make(map[byte]string, len(Keys))
)

func init() {
	for _, k := range Keys {
		byName[k.Name] = k.Code
		if _, ok := byCode[k.Code]; !ok {
			byCode[k.Code] = k.Name
		}
	}
}

// Lookup resolves a placeholder name (without braces). Besides the names in
// Keys it accepts a hex literal of the form $XX.
func Lookup(name string) (byte, bool) {
	name = strings.ToUpper(name)
	if code, ok := byName[name]; ok {
		return code, true
	}
	if strings.HasPrefix(name, "$") && len(name) == 3 {
		v, err := strconv.ParseUint(name[1:], 16, 8)
		if err == nil {
			return byte(v), true
		}
	}
	return 0, false
}

// Placeholder renders a code in {NAME} form, falling back to {$XX}.
func Placeholder(code byte) string {
	if name, ok := byCode[code]; ok {
		return "{" + name + "}"
	}
	return fmt.Sprintf("{$%02X}", code)
}

// Printable reports whether c is a character that PETSCII shares with ASCII
// in the unshifted (uppercase/graphics) character set.
func Printable(c rune) bool {
	return c >= 0x20 && c <= 0x5F
}

// FromRune maps a host character to its PETSCII code. Lowercase letters are
// folded to uppercase.
func FromRune(c rune) (byte, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return byte(c - 32), true
	case Printable(c):
		return byte(c), true
	case c == 'π':
		return Pi, true
	case c == '£':
		return 0x5C, true
	case c == '↑':
		return 0x5E, true
	case c == '←':
		return 0x5F, true
	}
	return 0, false
}

// keyboardPunct is the punctuation the keyboard buffer accepts verbatim.
const keyboardPunct = "!\"#$%&'()*+,-./:;<=>?@[]^"

// FromText converts text for the keyboard buffer. {NAME} placeholders are
// replaced by their control codes; unknown placeholders and characters that
// have no key are dropped.
func FromText(text string) []byte {
	out := make([]byte, 0, len(text))
	for i := 0; i < len(text); {
		if text[i] == '{' {
			if end := strings.IndexByte(text[i:], '}'); end > 0 {
				if code, ok := Lookup(text[i+1 : i+end]); ok {
					out = append(out, code)
				}
				i += end + 1
				continue
			}
		}
		c := text[i]
		switch {
		case c == ' ', c >= '0' && c <= '9', c >= 'A' && c <= 'Z':
			out = append(out, c)
		case c >= 'a' && c <= 'z':
			out = append(out, c-32)
		case strings.IndexByte(keyboardPunct, c) >= 0:
			out = append(out, c)
		}
		i++
	}
	return out
}

// ScreenCodeToRune maps a screen memory code to a printable rune. Reverse
// video codes render like their normal counterparts; block graphics collapse
// to a shade character.
func ScreenCodeToRune(code byte) rune {
	code &= 0x7F
	switch {
	case code == 0x00:
		return '@'
	case code <= 0x1A:
		return rune('A' + code - 1)
	case code == 0x1B:
		return '['
	case code == 0x1C:
		return '£'
	case code == 0x1D:
		return ']'
	case code == 0x1E:
		return '↑'
	case code == 0x1F:
		return '←'
	case code <= 0x3F:
		return rune(code)
	case code == 0x60:
		return ' '
	case code == 0x5E:
		return 'π'
	}
	return '▒'
}
